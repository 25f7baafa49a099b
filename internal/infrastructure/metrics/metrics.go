package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/you/phoneauth/domain"
)

var (
	// OTPRequestCounter counts challenge requests by purpose and outcome
	OTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_requests_total",
			Help: "Total number of OTP challenge requests",
		},
		[]string{"purpose", "result"},
	)

	// OTPVerifyCounter counts verification attempts by outcome
	OTPVerifyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"result"},
	)

	// TokenIssuedCounter counts token pairs minted by reason
	TokenIssuedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Total number of token pairs issued",
		},
		[]string{"reason"}, // login, federated, refresh
	)

	// SweptChallengesCounter counts challenges removed by the sweeper
	SweptChallengesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_otp_swept_total",
			Help: "Total number of stale OTP challenges deleted",
		},
	)

	// HTTPRequestCounter counts requests by route and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// HTTPRequestDuration records request latency
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		OTPRequestCounter,
		OTPVerifyCounter,
		TokenIssuedCounter,
		SweptChallengesCounter,
		HTTPRequestCounter,
		HTTPRequestDuration,
	)
}

// Result turns an operation error into a low-cardinality label value
func Result(err error) string {
	if err == nil {
		return "success"
	}
	return string(domain.CodeOf(err))
}

// Middleware records request counts and latency per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		HTTPRequestCounter.WithLabelValues(endpoint, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(endpoint, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

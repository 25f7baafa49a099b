package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/app"
	"github.com/you/phoneauth/internal/config"
	"github.com/you/phoneauth/internal/infrastructure/database"
	"github.com/you/phoneauth/internal/mocks"
)

// TestServer is a fully wired service over sqlite and miniredis
type TestServer struct {
	t         *testing.T
	Container *app.Container
	Server    *httptest.Server
	SMS       *mocks.MockNotificationService
	Identity  *mocks.MockIdentityVerifier
	Redis     *miniredis.Miniredis

	smsDown atomic.Bool
}

// Response is the decoded envelope of an API response
type Response struct {
	Status  int
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Data    map[string]interface{} `json:"data"`
	Raw     string
}

func testConfig(backend string) *config.Config {
	cfg := config.Default()
	cfg.App.Env = "test"
	cfg.Store.ChallengeBackend = backend
	cfg.JWT.AccessSecret = "e2e-access-secret-0123456789abcdef"
	cfg.JWT.RefreshSecret = "e2e-refresh-secret-0123456789abcdef"
	cfg.OTP.HashCost = 4
	cfg.OTP.SweepInterval = 0
	cfg.HTTP.RateLimitRPS = 0
	return cfg
}

// backends lists the challenge stores every flow runs against
var backends = []string{config.ChallengeBackendRedis, config.ChallengeBackendPostgres}

// NewTestServer builds the real router and container for one test. The
// identities map is installed before the server starts accepting requests.
func NewTestServer(t *testing.T, backend string, identities ...map[string]*domain.FederatedIdentity) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig(backend)
	require.NoError(t, cfg.Validate())

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := database.OpenDialector(sqlite.Open(dsn), config.DatabaseConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	var rdb *redis.Client
	if backend == config.ChallengeBackendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
	}

	s := &TestServer{t: t, Redis: mr}
	sms := mocks.NewMockNotificationService()
	sms.SendOTPFunc = func(ctx context.Context, phone, code string, ttl time.Duration) error {
		if s.smsDown.Load() {
			return errors.New("sms gateway unreachable")
		}
		return nil
	}
	idp := mocks.NewMockIdentityVerifier()
	for _, ids := range identities {
		for token, id := range ids {
			idp.Identities[token] = id
		}
	}
	c, err := app.Build(context.Background(), cfg, zap.NewNop(), db, rdb,
		app.WithNotifier(sms),
		app.WithIdentityVerifier(idp),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(c.Router)
	t.Cleanup(srv.Close)

	s.Container, s.Server, s.SMS, s.Identity = c, srv, sms, idp
	return s
}

// SetSMSDown makes every SMS delivery fail until called with false
func (s *TestServer) SetSMSDown(down bool) { s.smsDown.Store(down) }

// Do sends a JSON request and decodes the envelope
func (s *TestServer) Do(method, path string, body interface{}, bearer string) Response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(s.t, err)

	out := Response{Status: resp.StatusCode, Raw: raw.String()}
	if raw.Len() > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(raw.Bytes(), &out), out.Raw)
	}
	return out
}

// Post is Do with POST
func (s *TestServer) Post(path string, body interface{}) Response {
	return s.Do(http.MethodPost, path, body, "")
}

// Tokens extracts the token pair from a sign-in response
func (r Response) Tokens(t *testing.T) (access, refresh string) {
	t.Helper()
	tokens, ok := r.Data["tokens"].(map[string]interface{})
	if !ok {
		tokens = r.Data
	}
	access, _ = tokens["accessToken"].(string)
	refresh, _ = tokens["refreshToken"].(string)
	require.NotEmpty(t, access, r.Raw)
	require.NotEmpty(t, refresh, r.Raw)
	return access, refresh
}

// SignUpAndSignIn registers a customer and completes the OTP sign-in
func (s *TestServer) SignUpAndSignIn(fullName, email, phone string) (access, refresh string) {
	s.t.Helper()
	resp := s.Post("/auth/signup", map[string]string{"fullName": fullName, "email": email, "phone": phone})
	require.Equal(s.t, http.StatusCreated, resp.Status, resp.Raw)

	resp = s.Post("/auth/verify-otp", map[string]string{"phone": phone, "otp": s.SMS.LastCode(phone)})
	require.Equal(s.t, http.StatusOK, resp.Status, resp.Raw)
	return resp.Tokens(s.t)
}

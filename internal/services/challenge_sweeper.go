package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/infrastructure/metrics"
)

// ChallengeSweeper periodically deletes used and expired challenges
type ChallengeSweeper struct {
	challenges domain.ChallengeRepository
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewChallengeSweeper creates a sweeper; a non-positive interval disables it
func NewChallengeSweeper(challenges domain.ChallengeRepository, interval time.Duration, logger *zap.Logger) *ChallengeSweeper {
	return &ChallengeSweeper{
		challenges: challenges,
		interval:   interval,
		logger:     logger.Named("sweeper"),
		now:        time.Now,
	}
}

// Run sweeps until ctx is done
func (s *ChallengeSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes stale challenges and returns how many were removed
func (s *ChallengeSweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.challenges.DeleteStale(ctx, s.now())
	if err != nil {
		s.logger.Warn("challenge sweep failed", zap.Error(err))
	}
	if n > 0 {
		metrics.SweptChallengesCounter.Add(float64(n))
		s.logger.Debug("swept challenges", zap.Int64("count", n))
	}
	return n
}

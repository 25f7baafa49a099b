package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/mocks"
)

func TestChallengeSweeper_SweepOnce(t *testing.T) {
	repo := mocks.NewMockChallengeRepository()
	ctx := context.Background()
	clock := newTestClock()

	expired := domain.NewChallenge("expired", "9876543210", "h", domain.PurposeSignin, clock.Now().Add(-time.Hour), 10*time.Minute)
	live := domain.NewChallenge("live", "9876543210", "h", domain.PurposeSignin, clock.Now(), 10*time.Minute)
	require.NoError(t, repo.Create(ctx, &expired))
	require.NoError(t, repo.Create(ctx, &live))

	sweeper := NewChallengeSweeper(repo, time.Minute, zap.NewNop())
	sweeper.now = clock.Now

	assert.Equal(t, int64(1), sweeper.SweepOnce(ctx))
	remaining := repo.All()
	require.Len(t, remaining, 1)
	assert.Equal(t, "live", remaining[0].ID)
}

func TestChallengeSweeper_RunStopsWithContext(t *testing.T) {
	repo := mocks.NewMockChallengeRepository()
	swept := make(chan struct{}, 1)
	repo.DeleteStaleFunc = func(context.Context, time.Time) (int64, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewChallengeSweeper(repo, 10*time.Millisecond, zap.NewNop()).Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

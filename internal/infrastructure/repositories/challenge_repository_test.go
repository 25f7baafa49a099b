package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/phoneauth/domain"
)

// setupTestRedis creates an in-memory Redis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// challengeStores runs each contract test against both backends
func challengeStores(t *testing.T) map[string]func(t *testing.T) domain.ChallengeRepository {
	return map[string]func(t *testing.T) domain.ChallengeRepository{
		"gorm": func(t *testing.T) domain.ChallengeRepository {
			return NewChallengeRepository(setupTestDB(t), 5*time.Second)
		},
		"redis": func(t *testing.T) domain.ChallengeRepository {
			client, _ := setupTestRedis(t)
			return NewRedisChallengeRepository(client, 5*time.Second, time.Hour)
		},
	}
}

func seedChallenge(t *testing.T, repo domain.ChallengeRepository, id, phone string, createdAt time.Time, ttl time.Duration) *domain.Challenge {
	t.Helper()
	c := domain.NewChallenge(id, phone, "hash-"+id, domain.PurposeSignin, createdAt, ttl)
	require.NoError(t, repo.Create(context.Background(), &c))
	return &c
}

func TestChallengeRepository_FindLatest(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()

			seedChallenge(t, repo, "c1", "9876543210", base.Add(-3*time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "c2", "9876543210", base.Add(-2*time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "c3", "9876543210", base.Add(-time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "other", "9123456789", base, 10*time.Minute)

			got, err := repo.FindLatestValidForPhone(ctx, "9876543210", base)
			require.NoError(t, err)
			assert.Equal(t, "c3", got.ID)
			assert.Equal(t, "hash-c3", got.CodeHash)
			assert.Equal(t, domain.PurposeSignin, got.Purpose)
			assert.True(t, got.ExpiresAt.Equal(base.Add(9*time.Minute)))

			ok, err := repo.MarkUsedIfUnused(ctx, "c3")
			require.NoError(t, err)
			require.True(t, ok)

			got, err = repo.FindLatestValidForPhone(ctx, "9876543210", base)
			require.NoError(t, err)
			assert.Equal(t, "c2", got.ID, "used challenge is skipped")

			got, err = repo.FindLatestForPhone(ctx, "9876543210")
			require.NoError(t, err)
			assert.Equal(t, "c3", got.ID)
			assert.True(t, got.Used)

			_, err = repo.FindLatestValidForPhone(ctx, "9876543210", base.Add(time.Hour))
			assert.ErrorIs(t, err, domain.ErrOTPNotFound, "expired challenges are skipped")

			_, err = repo.FindLatestForPhone(ctx, "9000000000")
			assert.ErrorIs(t, err, domain.ErrOTPNotFound)
		})
	}
}

func TestChallengeRepository_CountRecentForPhone(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)

			seedChallenge(t, repo, "old", "9876543210", base.Add(-20*time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "a", "9876543210", base.Add(-10*time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "b", "9876543210", base.Add(-time.Minute), 10*time.Minute)

			n, err := repo.CountRecentForPhone(context.Background(), "9876543210", base.Add(-15*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			n, err = repo.CountRecentForPhone(context.Background(), "9123456789", base.Add(-15*time.Minute))
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestChallengeRepository_ReserveAttempt(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedChallenge(t, repo, "c1", "9876543210", base, 10*time.Minute)
			seedChallenge(t, repo, "c2", "9123456789", base, 10*time.Minute)

			for i := 0; i < 3; i++ {
				ok, err := repo.ReserveAttempt(ctx, "c1", 3)
				require.NoError(t, err)
				require.True(t, ok, "attempt %d", i+1)
			}
			ok, err := repo.ReserveAttempt(ctx, "c1", 3)
			require.NoError(t, err)
			assert.False(t, ok, "limit reached")

			got, err := repo.FindLatestForPhone(ctx, "9876543210")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Attempts)

			_, err = repo.MarkUsedIfUnused(ctx, "c2")
			require.NoError(t, err)
			ok, err = repo.ReserveAttempt(ctx, "c2", 3)
			require.NoError(t, err)
			assert.False(t, ok, "used challenges take no attempts")
		})
	}
}

func TestChallengeRepository_ReserveAttemptConcurrent(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seedChallenge(t, repo, "c1", "9876543210", base, 10*time.Minute)

			var wg sync.WaitGroup
			var mu sync.Mutex
			reserved := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := repo.ReserveAttempt(context.Background(), "c1", 3)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						reserved++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 3, reserved)

			got, err := repo.FindLatestForPhone(context.Background(), "9876543210")
			require.NoError(t, err)
			assert.Equal(t, 3, got.Attempts)
		})
	}
}

func TestChallengeRepository_MarkUsedIfUnusedConcurrent(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			seedChallenge(t, repo, "c1", "9876543210", base, 10*time.Minute)

			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := repo.MarkUsedIfUnused(context.Background(), "c1")
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})
	}
}

func TestChallengeRepository_DeleteStale(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()

			seedChallenge(t, repo, "expired", "9876543210", base.Add(-20*time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "used", "9876543210", base.Add(-time.Minute), 10*time.Minute)
			seedChallenge(t, repo, "live", "9876543210", base, 10*time.Minute)
			seedChallenge(t, repo, "other-expired", "9123456789", base.Add(-30*time.Minute), 10*time.Minute)
			_, err := repo.MarkUsedIfUnused(ctx, "used")
			require.NoError(t, err)

			require.NoError(t, repo.DeleteStaleForPhone(ctx, "9876543210", base))

			n, err := repo.CountRecentForPhone(ctx, "9876543210", base.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			got, err := repo.FindLatestForPhone(ctx, "9876543210")
			require.NoError(t, err)
			assert.Equal(t, "live", got.ID)

			removed, err := repo.DeleteStale(ctx, base)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			_, err = repo.FindLatestForPhone(ctx, "9123456789")
			assert.ErrorIs(t, err, domain.ErrOTPNotFound)
		})
	}
}

func TestChallengeRepository_Delete(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for name, newRepo := range challengeStores(t) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			seedChallenge(t, repo, "c1", "9876543210", base, 10*time.Minute)

			require.NoError(t, repo.Delete(ctx, "c1"))
			require.NoError(t, repo.Delete(ctx, "c1"), "deleting twice is a no-op")

			_, err := repo.FindLatestForPhone(ctx, "9876543210")
			assert.ErrorIs(t, err, domain.ErrOTPNotFound)

			n, err := repo.CountRecentForPhone(ctx, "9876543210", base.Add(-time.Minute))
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRedisChallengeRepository_KeysExpire(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewRedisChallengeRepository(client, time.Second, time.Minute)
	now := time.Now()
	seedChallenge(t, repo, "c1", "9876543210", now, 10*time.Minute)

	ttl := mr.TTL(challengeKey("c1"))
	assert.Greater(t, ttl, 10*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	_, err := repo.MarkUsedIfUnused(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOTPNotFound)
	_, err = repo.ReserveAttempt(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, domain.ErrOTPNotFound)
}

func TestRedisChallengeRepository_Unavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewRedisChallengeRepository(client, 200*time.Millisecond, time.Minute)
	mr.Close()

	_, err := repo.CountRecentForPhone(context.Background(), "9876543210", time.Now())
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Equal(t, domain.CodeServiceUnavailable, domain.CodeOf(err), fmt.Sprintf("%v", err))
}

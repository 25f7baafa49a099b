package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/you/phoneauth/domain"
)

const (
	challengeKeyPrefix = "otp:challenge:"
	phoneIndexPrefix   = "otp:phone:"

	// DefaultChallengeRetention keeps finished challenges readable after expiry
	// so late verifications report Expired instead of NotFound.
	DefaultChallengeRetention = time.Hour
)

// markUsedScript flips used to 1 only if it is still 0.
// Returns -1 when the challenge is gone, 0 when it was already used, 1 on success.
var markUsedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// reserveAttemptScript increments attempts only while the challenge is unused
// and below ARGV[1]. Returns -1 when the challenge is gone, 0 when refused, 1 on success.
var reserveAttemptScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
	return 0
end
if tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0') >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return 1
`)

// RedisChallengeRepository implements domain.ChallengeRepository on Redis.
// Each challenge is a hash; a sorted set per phone indexes ids by creation time.
type RedisChallengeRepository struct {
	client    *redis.Client
	timeout   time.Duration
	retention time.Duration
}

// NewRedisChallengeRepository creates a Redis-backed challenge store
func NewRedisChallengeRepository(client *redis.Client, timeout, retention time.Duration) domain.ChallengeRepository {
	if retention <= 0 {
		retention = DefaultChallengeRetention
	}
	return &RedisChallengeRepository{client: client, timeout: timeout, retention: retention}
}

func challengeKey(id string) string { return challengeKeyPrefix + id }
func phoneKey(phone string) string  { return phoneIndexPrefix + phone }

// Create implements domain.ChallengeRepository
func (r *RedisChallengeRepository) Create(ctx context.Context, c *domain.Challenge) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	key := challengeKey(c.ID)
	expireAt := c.ExpiresAt.Add(r.retention)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"phone":      c.Phone,
			"code_hash":  c.CodeHash,
			"purpose":    string(c.Purpose),
			"attempts":   c.Attempts,
			"expires_at": c.ExpiresAt.UnixNano(),
			"used":       boolFlag(c.Used),
			"created_at": c.CreatedAt.UnixNano(),
		})
		pipe.ExpireAt(ctx, key, expireAt)
		pipe.ZAdd(ctx, phoneKey(c.Phone), redis.Z{Score: float64(c.CreatedAt.UnixMilli()), Member: c.ID})
		pipe.ExpireAt(ctx, phoneKey(c.Phone), expireAt)
		return nil
	})
	return translateStoreError("create challenge", err)
}

// FindLatestValidForPhone implements domain.ChallengeRepository
func (r *RedisChallengeRepository) FindLatestValidForPhone(ctx context.Context, phone string, now time.Time) (*domain.Challenge, error) {
	return r.latest(ctx, phone, func(c *domain.Challenge) bool {
		return !c.Used && !c.IsExpired(now)
	})
}

// FindLatestForPhone implements domain.ChallengeRepository
func (r *RedisChallengeRepository) FindLatestForPhone(ctx context.Context, phone string) (*domain.Challenge, error) {
	return r.latest(ctx, phone, func(*domain.Challenge) bool { return true })
}

func (r *RedisChallengeRepository) latest(ctx context.Context, phone string, match func(*domain.Challenge) bool) (*domain.Challenge, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	challenges, err := r.loadForPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	// newest first
	for _, c := range challenges {
		if match(c) {
			return c, nil
		}
	}
	return nil, domain.ErrOTPNotFound
}

// loadForPhone returns the phone's challenges newest first, skipping index
// entries whose hash has already expired out of Redis.
func (r *RedisChallengeRepository) loadForPhone(ctx context.Context, phone string) ([]*domain.Challenge, error) {
	ids, err := r.client.ZRevRange(ctx, phoneKey(phone), 0, -1).Result()
	if err != nil {
		return nil, translateStoreError("list challenges", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, challengeKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, translateStoreError("load challenges", err)
	}

	out := make([]*domain.Challenge, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := decodeChallenge(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	// scores have millisecond resolution; break ties on the stored nanoseconds
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountRecentForPhone implements domain.ChallengeRepository
func (r *RedisChallengeRepository) CountRecentForPhone(ctx context.Context, phone string, windowStart time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.client.ZCount(ctx, phoneKey(phone), strconv.FormatInt(windowStart.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, translateStoreError("count challenges", err)
	}
	return n, nil
}

// ReserveAttempt implements domain.ChallengeRepository
func (r *RedisChallengeRepository) ReserveAttempt(ctx context.Context, id string, maxAttempts int) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	n, err := reserveAttemptScript.Run(ctx, r.client, []string{challengeKey(id)}, maxAttempts).Int64()
	if err != nil {
		return false, translateStoreError("reserve attempt", err)
	}
	if n < 0 {
		return false, domain.ErrOTPNotFound
	}
	return n == 1, nil
}

// MarkUsedIfUnused implements domain.ChallengeRepository
func (r *RedisChallengeRepository) MarkUsedIfUnused(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	n, err := markUsedScript.Run(ctx, r.client, []string{challengeKey(id)}).Int64()
	if err != nil {
		return false, translateStoreError("mark challenge used", err)
	}
	switch n {
	case -1:
		return false, domain.ErrOTPNotFound
	case 0:
		return false, nil
	}
	return true, nil
}

// Delete implements domain.ChallengeRepository
func (r *RedisChallengeRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	key := challengeKey(id)
	phone, err := r.client.HGet(ctx, key, "phone").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return translateStoreError("delete challenge", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, phoneKey(phone), id)
		return nil
	})
	return translateStoreError("delete challenge", err)
}

// DeleteStaleForPhone implements domain.ChallengeRepository
func (r *RedisChallengeRepository) DeleteStaleForPhone(ctx context.Context, phone string, now time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.purgePhone(ctx, phone, now)
	return err
}

// purgePhone removes used or expired challenges and dangling index entries
func (r *RedisChallengeRepository) purgePhone(ctx context.Context, phone string, now time.Time) (int64, error) {
	ids, err := r.client.ZRange(ctx, phoneKey(phone), 0, -1).Result()
	if err != nil {
		return 0, translateStoreError("list challenges", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, challengeKey(id), "used", "expires_at")
		}
		return nil
	})
	if err != nil {
		return 0, translateStoreError("load challenges", err)
	}

	var stale []string
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
			stale = append(stale, ids[i])
			continue
		}
		used, _ := vals[0].(string)
		expiresRaw, _ := vals[1].(string)
		expires, err := strconv.ParseInt(expiresRaw, 10, 64)
		if err != nil || used == "1" || now.After(time.Unix(0, expires)) {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := make([]string, len(stale))
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			keys[i] = challengeKey(id)
			members[i] = id
		}
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, phoneKey(phone), members...)
		return nil
	})
	if err != nil {
		return 0, translateStoreError("delete stale challenges", err)
	}
	return int64(len(stale)), nil
}

// DeleteStale implements domain.ChallengeRepository by scanning phone indexes
func (r *RedisChallengeRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	iter := r.client.Scan(ctx, 0, phoneIndexPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		phone := iter.Val()[len(phoneIndexPrefix):]
		callCtx, cancel := withTimeout(ctx, r.timeout)
		n, err := r.purgePhone(callCtx, phone, now)
		cancel()
		if err != nil {
			return total, err
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return total, translateStoreError("scan challenges", err)
	}
	return total, nil
}

func decodeChallenge(id string, f map[string]string) (*domain.Challenge, error) {
	attempts, err := strconv.Atoi(f["attempts"])
	if err != nil {
		return nil, fmt.Errorf("decode challenge %s attempts: %w", id, err)
	}
	expires, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode challenge %s expiry: %w", id, err)
	}
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode challenge %s creation: %w", id, err)
	}
	return &domain.Challenge{
		ID:        id,
		Phone:     f["phone"],
		CodeHash:  f["code_hash"],
		Purpose:   domain.Purpose(f["purpose"]),
		Attempts:  attempts,
		ExpiresAt: time.Unix(0, expires),
		Used:      f["used"] == "1",
		CreatedAt: time.Unix(0, created),
	}, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

package domain

import "time"

// ChallengeOp names the persistence operation a challenge transition requires
type ChallengeOp int

const (
	ChallengeOpNone ChallengeOp = iota
	ChallengeOpMarkUsed
)

// NewChallenge builds a fresh challenge for a hashed code
func NewChallenge(id, phone, codeHash string, purpose Purpose, now time.Time, ttl time.Duration) Challenge {
	return Challenge{
		ID:        id,
		Phone:     phone,
		CodeHash:  codeHash,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsExpired reports whether now is past the expiry timestamp
func (c Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsStale reports whether the challenge may be garbage collected
func (c Challenge) IsStale(now time.Time) bool {
	return c.Used || c.IsExpired(now)
}

// CheckVerifiable returns the terminal-state error for c, if any. Order matters:
// a used challenge never reaches the hash comparison, and neither does an
// exhausted one.
func (c Challenge) CheckVerifiable(now time.Time, maxAttempts int) error {
	switch {
	case c.Used:
		return ErrOTPAlreadyUsed
	case c.IsExpired(now):
		return ErrOTPExpired
	case c.Attempts >= maxAttempts:
		return ErrOTPMaxAttempts
	}
	return nil
}

// ReserveAttempt consumes one attempt on c. It must succeed before the
// candidate code is compared, so a mismatch has already been counted.
func ReserveAttempt(c Challenge, now time.Time, maxAttempts int) (Challenge, error) {
	if err := c.CheckVerifiable(now, maxAttempts); err != nil {
		return c, err
	}
	c.Attempts++
	return c, nil
}

// ApplyVerification returns the next state of a reserved challenge given
// whether the candidate code matched, and the store operation that records it.
func ApplyVerification(c Challenge, matched bool) (Challenge, ChallengeOp, error) {
	if !matched {
		return c, ChallengeOpNone, ErrOTPInvalid
	}
	c.Used = true
	return c, ChallengeOpMarkUsed, nil
}

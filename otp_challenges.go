package otpauth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

// OTPChallenges owns the lifecycle of one-time codes: generation, keyed
// hashing, expiry, attempt counting and single-use consumption. Persistence
// is delegated to a ChallengeBackend.
type OTPChallenges struct {
	backend ChallengeBackend
	cfg     OTPConfig
	now     func() time.Time
}

// NewOTPChallenges validates cfg and returns a challenge store on top of
// backend. A nil now uses time.Now.
func NewOTPChallenges(backend ChallengeBackend, cfg OTPConfig, now func() time.Time) (*OTPChallenges, error) {
	if backend == nil {
		return nil, errors.New("challenge backend required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("otp secret required")
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.TTL <= 0 || cfg.MaxAttempts <= 0 {
		return nil, errors.New("otp TTL and MaxAttempts must be > 0")
	}
	if cfg.MaxAttempts > math.MaxUint16 {
		return nil, errors.New("otp MaxAttempts must be <= 65535")
	}
	if now == nil {
		now = time.Now
	}
	cfg.Secret = cloneBytes(cfg.Secret)

	return &OTPChallenges{backend: backend, cfg: cfg, now: now}, nil
}

// Create issues a fresh code for (channel, identifier, purpose), replacing
// any earlier challenge for the same key. The plaintext code is returned
// exactly once and never stored.
func (c *OTPChallenges) Create(ctx context.Context, channel Channel, identifier string, purpose Purpose) (string, time.Time, error) {
	if !channel.Valid() || !purpose.Valid() || identifier == "" {
		return "", time.Time{}, ErrValidation
	}

	code, err := internal.NewOTP(c.cfg.Digits)
	if err != nil {
		return "", time.Time{}, err
	}

	now := c.now()
	expiresAt := now.Add(c.cfg.TTL)
	record := ChallengeRecord{
		SecretHash: internal.HashOTP(c.cfg.Secret, code),
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}

	key := ChallengeKey{Channel: channel, Identifier: identifier, Purpose: purpose}
	if err := c.backend.Upsert(ctx, key, record, c.cfg.TTL+c.cfg.ExpiredRetention); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	return code, expiresAt, nil
}

// Verify checks candidate against the live challenge. A match consumes the
// challenge; a mismatch spends one attempt.
func (c *OTPChallenges) Verify(ctx context.Context, channel Channel, identifier string, purpose Purpose, candidate string) (VerifyOutcome, error) {
	key := ChallengeKey{Channel: channel, Identifier: identifier, Purpose: purpose}

	outcome, err := c.backend.Verify(ctx, key, internal.HashOTP(c.cfg.Secret, candidate), c.cfg.MaxAttempts, c.now())
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return outcome, nil
}

/*
====================================
BACKEND ADAPTERS
====================================
*/

type challengeStore interface {
	Put(ctx context.Context, id string, record *stores.ChallengeRecord, ttl time.Duration) error
	Check(ctx context.Context, id string, providedHash [32]byte, maxAttempts int, now time.Time) (stores.ChallengeStatus, int, error)
}

type storeBackend struct {
	store challengeStore
}

// NewRedisChallengeBackend stores challenges in Redis under prefix, so
// every instance sharing the Redis sees the same challenges.
func NewRedisChallengeBackend(client redis.UniversalClient, prefix string) ChallengeBackend {
	return &storeBackend{store: stores.NewRedisChallengeStore(client, prefix)}
}

// MemoryChallengeBackend keeps challenges in process. Only suitable when a
// single instance serves all requests.
type MemoryChallengeBackend struct {
	storeBackend
	mem *stores.MemoryChallengeStore
}

func NewMemoryChallengeBackend(now func() time.Time) *MemoryChallengeBackend {
	if now == nil {
		now = time.Now
	}
	mem := stores.NewMemoryChallengeStore(now)
	return &MemoryChallengeBackend{
		storeBackend: storeBackend{store: mem},
		mem:          mem,
	}
}

// Sweep evicts records past their retention window.
func (b *MemoryChallengeBackend) Sweep() int {
	return b.mem.Sweep()
}

func (b *storeBackend) Upsert(ctx context.Context, key ChallengeKey, record ChallengeRecord, lifetime time.Duration) error {
	return b.store.Put(ctx, key.String(), &stores.ChallengeRecord{
		SecretHash: record.SecretHash,
		ExpiresAt:  record.ExpiresAt.UnixMilli(),
		CreatedAt:  record.CreatedAt.UnixMilli(),
	}, lifetime)
}

func (b *storeBackend) Verify(ctx context.Context, key ChallengeKey, candidate [32]byte, maxAttempts int, now time.Time) (VerifyOutcome, error) {
	status, left, err := b.store.Check(ctx, key.String(), candidate, maxAttempts, now)
	if err != nil {
		return VerifyOutcome{}, err
	}

	switch status {
	case stores.StatusMatched:
		return VerifyOutcome{Status: VerifyOK}, nil
	case stores.StatusExpired:
		return VerifyOutcome{Status: VerifyExpired}, nil
	case stores.StatusAttemptsExceeded:
		return VerifyOutcome{Status: VerifyMaxAttempts}, nil
	case stores.StatusMismatch:
		return VerifyOutcome{Status: VerifyInvalid, AttemptsLeft: left}, nil
	default:
		return VerifyOutcome{Status: VerifyNotFound}, nil
	}
}

package otpauth

import (
	"context"
	"strings"
	"time"
)

// Channel is the medium a one-time code is delivered over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Purpose scopes a challenge to the flow that created it.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeLogin  Purpose = "login"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposeLogin
}

// ChallengeKey identifies the single live challenge for a
// (channel, identifier, purpose) triple.
type ChallengeKey struct {
	Channel    Channel
	Identifier string
	Purpose    Purpose
}

func (k ChallengeKey) String() string {
	return string(k.Channel) + ":" + string(k.Purpose) + ":" + k.Identifier
}

// ChallengeRecord is the persisted form of a pending code. The plaintext code
// is never part of it.
type ChallengeRecord struct {
	SecretHash [32]byte
	Attempts   int
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// VerifyStatus enumerates the mutually exclusive verification outcomes, in
// the priority order they are checked.
type VerifyStatus uint8

const (
	VerifyOK VerifyStatus = iota
	VerifyNotFound
	VerifyExpired
	VerifyMaxAttempts
	VerifyInvalid
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "OK"
	case VerifyNotFound:
		return "OTP_NOT_FOUND"
	case VerifyExpired:
		return "OTP_EXPIRED"
	case VerifyMaxAttempts:
		return "OTP_MAX_ATTEMPTS"
	case VerifyInvalid:
		return "OTP_INVALID"
	default:
		return "UNKNOWN"
	}
}

// VerifyOutcome is the result of checking a candidate code. AttemptsLeft is
// only meaningful for VerifyInvalid.
type VerifyOutcome struct {
	Status       VerifyStatus
	AttemptsLeft int
}

// Err maps the outcome onto the package sentinel errors. VerifyOK yields nil.
func (o VerifyOutcome) Err() error {
	switch o.Status {
	case VerifyOK:
		return nil
	case VerifyNotFound:
		return ErrOTPNotFound
	case VerifyExpired:
		return ErrOTPExpired
	case VerifyMaxAttempts:
		return ErrOTPMaxAttempts
	default:
		return &OTPError{Err: ErrOTPInvalid, AttemptsLeft: o.AttemptsLeft}
	}
}

// ChallengeBackend persists challenge records. Implementations must make each
// method a single atomic unit with respect to other calls for the same key.
type ChallengeBackend interface {
	// Upsert replaces whatever is stored under key with record. The record
	// stays physically present for lifetime, which covers the logical TTL
	// plus the expired-record retention.
	Upsert(ctx context.Context, key ChallengeKey, record ChallengeRecord, lifetime time.Duration) error

	// Verify compares candidate with the stored hash in constant time and
	// applies the outcome: delete on match, attempts+1 on mismatch. Checks
	// run in VerifyStatus order; expiry is judged against now.
	Verify(ctx context.Context, key ChallengeKey, candidate [32]byte, maxAttempts int, now time.Time) (VerifyOutcome, error)
}

// WindowBackend holds fixed-window request counters.
type WindowBackend interface {
	// Hit counts one request for key and returns the count inside the active
	// window together with the instant the window resets. A new window of
	// length window starts when none is active.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error)
}

// ProviderFlags records which channels proved possession for an account.
type ProviderFlags struct {
	EmailOTPVerified      bool
	EmailOTPAt            time.Time
	PhoneOTPVerified      bool
	PhoneOTPAt            time.Time
	ExternalSubject       string
	ExternalEmailVerified bool
}

// User is an account record owned by the AccountDirectory.
type User struct {
	ID        string
	Email     string
	Phone     string
	Name      string
	Providers ProviderFlags
	CreatedAt time.Time
}

// NewUser carries the fields for AccountDirectory.Create.
type NewUser struct {
	Email     string
	Phone     string
	Name      string
	Providers ProviderFlags
}

// AccountDirectory owns user identity records. Create must enforce email and
// phone uniqueness at the storage layer and return ErrAccountExists on
// violation. Lookups return ErrUserNotFound when nothing matches.
type AccountDirectory interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	Create(ctx context.Context, user NewUser) (User, error)
}

// Notification is one code delivery request.
type Notification struct {
	Channel   Channel
	Recipient string
	Name      string
	Purpose   Purpose
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// Notifier delivers codes to users. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Identity is what a verified bearer token proves.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// AuthResult is returned by successful verify flows.
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// RateDecision describes the state of a source's window after a hit.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

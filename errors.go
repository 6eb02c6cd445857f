package otpauth

import "errors"

var (
	// ErrValidation is returned when request fields are malformed.
	ErrValidation = errors.New("validation failed")
	// ErrAccountExists is returned when the normalized email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrOTPNotFound means no live challenge exists for the key.
	ErrOTPNotFound = errors.New("otp challenge not found")
	// ErrOTPExpired means the challenge exists but is past its expiry instant.
	ErrOTPExpired = errors.New("otp challenge expired")
	// ErrOTPMaxAttempts means the attempt budget for the challenge is spent.
	ErrOTPMaxAttempts = errors.New("otp attempts exceeded")
	// ErrOTPInvalid means the candidate code did not match.
	ErrOTPInvalid = errors.New("otp invalid")

	// ErrNoToken is returned when no bearer token was presented.
	ErrNoToken = errors.New("no token")
	// ErrInvalidToken covers malformed, expired and badly signed tokens alike.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRateLimited is returned when the source exhausted its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrChallengeUnavailable wraps challenge backend failures.
	ErrChallengeUnavailable = errors.New("otp challenge backend unavailable")
	// ErrDirectoryUnavailable wraps account directory failures.
	ErrDirectoryUnavailable = errors.New("account directory unavailable")
	// ErrLimiterUnavailable wraps rate limiter backend failures.
	ErrLimiterUnavailable = errors.New("rate limiter backend unavailable")
	// ErrEngineNotReady is returned when an Engine was not built through a Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// OTPError carries the attempts left alongside ErrOTPInvalid.
type OTPError struct {
	Err          error
	AttemptsLeft int
}

func (e *OTPError) Error() string {
	return e.Err.Error()
}

func (e *OTPError) Unwrap() error {
	return e.Err
}

package otpauth

import (
	"errors"
	"math"
	"time"
)

// Config holds every tunable of the Engine. Instances are configured during
// initialization and treated as immutable afterwards.
type Config struct {
	OTP       OTPConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Notify    NotifyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls challenge generation and verification.
type OTPConfig struct {
	// Secret keys the HMAC applied to every code before it is stored.
	Secret      []byte
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	// ExpiredRetention keeps expired records around so verification can
	// tell OTP_EXPIRED apart from OTP_NOT_FOUND.
	ExpiredRetention time.Duration
	RedisPrefix      string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds requests per source over a fixed window.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	RedisPrefix string
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig bounds a single delivery attempt.
type NotifyConfig struct {
	Timeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	ProductionMode bool
}

const minProductionSecretLen = 32

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Secrets are left empty
// and must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Digits:           6,
			TTL:              10 * time.Minute,
			MaxAttempts:      5,
			ExpiredRetention: 10 * time.Minute,
			RedisPrefix:      "otp",
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      15 * time.Minute,
			MaxRequests: 60,
			RedisPrefix: "rl",
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.Secret = cloneBytes(cfg.OTP.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// OTP
	if len(c.OTP.Secret) == 0 {
		return errors.New("OTP Secret is required")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxAttempts > math.MaxUint16 {
		return errors.New("OTP MaxAttempts must be between 1 and 65535")
	}
	if c.OTP.ExpiredRetention < 0 {
		return errors.New("OTP ExpiredRetention must be >= 0")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New(c.JWT.SigningMethod + " requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0")
		}
		if c.RateLimit.RedisPrefix == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
	}

	if c.Notify.Timeout <= 0 {
		return errors.New("Notify Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if len(c.OTP.Secret) < minProductionSecretLen {
			return errors.New("OTP Secret must be at least 32 bytes in production mode")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < minProductionSecretLen {
			return errors.New("hs256 PrivateKey must be at least 32 bytes in production mode")
		}
		if !c.RateLimit.Enabled {
			return errors.New("RateLimit must be enabled in production mode")
		}
	}

	return nil
}

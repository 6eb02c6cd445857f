// Package appconfig loads process settings from the environment and an
// optional .env file.
package appconfig

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Env      string
	Port     int
	LogLevel slog.Level

	OTPSecret           string
	OTPLength           int
	OTPTTL              time.Duration
	OTPMaxAttempts      int
	OTPExpiredRetention time.Duration

	JWTAccessSecret string
	JWTAccessTTL    time.Duration
	JWTIssuer       string

	RateLimitWindow   time.Duration
	RateLimitMax      int
	TrustProxyHeaders bool
	CORSOrigins       []string

	RedisURL       string
	DatabaseURL    string
	AMQPURL        string
	NotifyExchange string
	NotifyLogCodes bool

	MetricsEnabled bool
	AuditEnabled   bool
	NotifyTimeout  time.Duration
	RequestTimeout time.Duration
}

var defaults = map[string]any{
	"APP_ENV":               "development",
	"PORT":                  3000,
	"LOG_LEVEL":             "info",
	"OTP_LENGTH":            6,
	"OTP_TTL":               "10m",
	"OTP_MAX_ATTEMPTS":      5,
	"OTP_EXPIRED_RETENTION": "10m",
	"JWT_ACCESS_TTL":        "15m",
	"JWT_ISSUER":            "",
	"RATE_LIMIT_WINDOW":     "15m",
	"RATE_LIMIT_MAX":        60,
	"TRUST_PROXY_HEADERS":   false,
	"CORS_ORIGINS":          "",
	"REDIS_URL":             "",
	"DATABASE_URL":          "",
	"AMQP_URL":              "",
	"NOTIFY_EXCHANGE":       "auth.notifications",
	"NOTIFY_LOG_CODES":      false,
	"METRICS_ENABLED":       true,
	"AUDIT_ENABLED":         true,
	"NOTIFY_TIMEOUT":        "5s",
	"REQUEST_TIMEOUT":       "10s",
	"OTP_SECRET":            "",
	"JWT_ACCESS_SECRET":     "",
}

// Load reads settings. Values in dir/.env fill gaps left by the process
// environment; built-in defaults fill the rest. A missing .env is fine.
func Load(dir string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	envFile := filepath.Join(dir, ".env")
	fileValues, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", envFile, err)
	}
	for key, value := range fileValues {
		v.SetDefault(strings.ToUpper(key), value)
	}

	v.AutomaticEnv()

	cfg := Config{
		Env:  strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port: v.GetInt("PORT"),

		OTPSecret:           v.GetString("OTP_SECRET"),
		OTPLength:           v.GetInt("OTP_LENGTH"),
		OTPTTL:              v.GetDuration("OTP_TTL"),
		OTPMaxAttempts:      v.GetInt("OTP_MAX_ATTEMPTS"),
		OTPExpiredRetention: v.GetDuration("OTP_EXPIRED_RETENTION"),

		JWTAccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		JWTAccessTTL:    v.GetDuration("JWT_ACCESS_TTL"),
		JWTIssuer:       v.GetString("JWT_ISSUER"),

		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMax:      v.GetInt("RATE_LIMIT_MAX"),
		TrustProxyHeaders: v.GetBool("TRUST_PROXY_HEADERS"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),

		RedisURL:       v.GetString("REDIS_URL"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		AMQPURL:        v.GetString("AMQP_URL"),
		NotifyExchange: v.GetString("NOTIFY_EXCHANGE"),
		NotifyLogCodes: v.GetBool("NOTIFY_LOG_CODES"),

		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		AuditEnabled:   v.GetBool("AUDIT_ENABLED"),
		NotifyTimeout:  v.GetDuration("NOTIFY_TIMEOUT"),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Production reports whether APP_ENV is production.
func (c Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.OTPSecret == "" {
		errs = append(errs, errors.New("OTP_SECRET is required"))
	}
	if c.JWTAccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.Production() && c.NotifyLogCodes {
		errs = append(errs, errors.New("NOTIFY_LOG_CODES must be off in production"))
	}
	return errors.Join(errs...)
}

// Engine maps the settings onto an otpauth.Config. The result still goes
// through otpauth.Config.Validate when the engine is built.
func (c Config) Engine() otpauth.Config {
	cfg := otpauth.DefaultConfig()

	cfg.OTP.Secret = []byte(c.OTPSecret)
	cfg.OTP.Digits = c.OTPLength
	cfg.OTP.TTL = c.OTPTTL
	cfg.OTP.MaxAttempts = c.OTPMaxAttempts
	cfg.OTP.ExpiredRetention = c.OTPExpiredRetention

	cfg.JWT.PrivateKey = []byte(c.JWTAccessSecret)
	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.Issuer = c.JWTIssuer

	cfg.RateLimit.Window = c.RateLimitWindow
	cfg.RateLimit.MaxRequests = c.RateLimitMax

	cfg.Notify.Timeout = c.NotifyTimeout
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled

	cfg.Security.ProductionMode = c.Production()

	return cfg
}

// NewLogger returns a JSON logger at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

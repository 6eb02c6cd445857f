package otpauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/otpauth/jwt"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Every With method records its argument; all
// validation happens in Build. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	challengeBackend ChallengeBackend
	windowBackend    WindowBackend
	directory        AccountDirectory
	notifier         Notifier
	auditSink        AuditSink
	logger           *slog.Logger
	now              func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs challenges and rate-limit windows with Redis unless a
// dedicated backend is supplied.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithChallengeBackend(backend ChallengeBackend) *Builder {
	b.challengeBackend = backend
	return b
}

func (b *Builder) WithWindowBackend(backend WindowBackend) *Builder {
	b.windowBackend = backend
	return b
}

func (b *Builder) WithAccountDirectory(dir AccountDirectory) *Builder {
	b.directory = dir
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source of every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// codeRevealer is implemented by development notifiers that print codes.
type codeRevealer interface {
	RevealsCodes() bool
}

// Build validates the configuration and dependencies and returns a ready
// Engine. Without Redis or explicit backends, challenges and windows are
// kept in process.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("account directory required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if r, ok := b.notifier.(codeRevealer); ok && r.RevealsCodes() && cfg.Security.ProductionMode {
		return nil, errors.New("notifier reveals codes and cannot be used in production mode")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- CHALLENGES --------
	challengeBackend := b.challengeBackend
	if challengeBackend == nil {
		if b.redis != nil {
			challengeBackend = NewRedisChallengeBackend(b.redis, cfg.OTP.RedisPrefix)
		} else {
			challengeBackend = NewMemoryChallengeBackend(now)
			logger.Warn("otp challenges are process-local; use Redis for multi-instance deployments")
		}
	}

	challenges, err := NewOTPChallenges(challengeBackend, cfg.OTP, now)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		logger:     logger,
		now:        now,
		challenges: challenges,
		directory:  b.directory,
		notifier:   b.notifier,
		metrics:    NewMetrics(cfg.Metrics),
		sweepStop:  make(chan struct{}),
	}

	// -------- RATE LIMITER --------
	var windowBackend WindowBackend
	if cfg.RateLimit.Enabled {
		windowBackend = b.windowBackend
		if windowBackend == nil {
			if b.redis != nil {
				windowBackend = NewRedisWindowBackend(b.redis, cfg.RateLimit.RedisPrefix)
			} else {
				windowBackend = NewMemoryWindowBackend()
			}
		}

		limiter, err := NewRateLimiter(windowBackend, cfg.RateLimit, now)
		if err != nil {
			return nil, err
		}
		engine.limiter = limiter
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.startSweeper(challengeBackend, windowBackend)

	b.built = true

	return engine, nil
}

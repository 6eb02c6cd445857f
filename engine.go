package otpauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/otpauth/jwt"
)

const sweepInterval = time.Minute

// Engine runs the signup and login flows. It is safe for concurrent use and
// is created through a Builder.
type Engine struct {
	config     Config
	logger     *slog.Logger
	now        func() time.Time
	challenges *OTPChallenges
	limiter    *RateLimiter
	directory  AccountDirectory
	notifier   Notifier
	tokens     *jwt.Manager
	audit      *auditDispatcher
	metrics    *Metrics

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
	closeOnce sync.Once
}

// Close stops background sweeping and drains queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepStop != nil {
			close(e.sweepStop)
		}
		e.sweepWG.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Challenges exposes the underlying code store.
func (e *Engine) Challenges() *OTPChallenges {
	return e.challenges
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.challenges == nil || e.directory == nil || e.tokens == nil || e.notifier == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Allow counts one request from source against the rate limit. With rate
// limiting disabled every request is allowed.
func (e *Engine) Allow(ctx context.Context, source string) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{Allowed: true}, nil
	}

	decision, err := e.limiter.Allow(ctx, source)
	if err != nil {
		return RateDecision{}, err
	}
	if !decision.Allowed {
		e.emitRateLimit(ctx, source)
	}
	return decision, nil
}

type windowSweeper interface {
	Sweep(now time.Time) int
}

type challengeSweeper interface {
	Sweep() int
}

func (e *Engine) startSweeper(challenges ChallengeBackend, windows WindowBackend) {
	cs, hasChallenges := challenges.(challengeSweeper)
	ws, hasWindows := windows.(windowSweeper)
	if !hasChallenges && !hasWindows {
		return
	}

	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-e.sweepStop:
				return
			case <-ticker.C:
				if hasChallenges {
					cs.Sweep()
				}
				if hasWindows {
					ws.Sweep(e.now())
				}
			}
		}
	}()
}

// issueFor signs an access token for user.
func (e *Engine) issueFor(user User) (AuthResult, error) {
	token, expiresAt, err := e.tokens.Issue(jwt.Subject{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	e.metricInc(MetricTokenIssued)
	return AuthResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// deliver hands the code to the notifier under the configured timeout.
// Delivery is best effort: a failure is logged and counted but the stored
// challenge stays valid.
func (e *Engine) deliver(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Notify.Timeout)
	defer cancel()

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.metricInc(MetricNotifyFailure)
		e.logger.WarnContext(ctx, "otp delivery failed",
			"channel", n.Channel,
			"purpose", n.Purpose,
			"error", err,
		)
		e.emitAudit(ctx, auditEventDeliveryFailed, false, "", n.Channel, n.Purpose, fmt.Errorf("%w: %v", errDelivery, err), nil)
	}
}

func directoryErr(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAccountExists) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
}

func (e *Engine) recordVerifyFailure(ctx context.Context, purpose Purpose, outcome VerifyOutcome) error {
	switch outcome.Status {
	case VerifyNotFound:
		e.metricInc(MetricOTPVerifyNotFound)
	case VerifyExpired:
		e.metricInc(MetricOTPVerifyExpired)
	case VerifyMaxAttempts:
		e.metricInc(MetricOTPMaxAttempts)
	default:
		e.metricInc(MetricOTPVerifyInvalid)
	}

	err := outcome.Err()
	e.emitAudit(ctx, auditEventOTPVerifyFailed, false, "", ChannelEmail, purpose, err, func() map[string]string {
		return map[string]string{"outcome": outcome.Status.String()}
	})
	return err
}

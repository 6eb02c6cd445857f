package otpauth

import (
	"context"
	"errors"
	"strings"
)

// RequestSignupOTP issues a signup code for an address that is not yet
// registered and hands it to the notifier. It fails with ErrAccountExists
// when the address already belongs to an account; no code is created then.
func (e *Engine) RequestSignupOTP(ctx context.Context, email, name string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return ErrValidation
	}

	if _, err := e.directory.FindByEmail(ctx, email); err == nil {
		return e.signupConflict(ctx)
	} else if !errors.Is(err, ErrUserNotFound) {
		return directoryErr(err)
	}

	code, expiresAt, err := e.challenges.Create(ctx, ChannelEmail, email, PurposeSignup)
	if err != nil {
		return err
	}

	e.deliver(ctx, Notification{
		Channel:   ChannelEmail,
		Recipient: email,
		Name:      name,
		Purpose:   PurposeSignup,
		Code:      code,
		ExpiresAt: expiresAt,
		TTL:       e.config.OTP.TTL,
	})

	e.metricInc(MetricSignupOTPRequested)
	e.emitAudit(ctx, auditEventSignupOTPRequested, true, "", ChannelEmail, PurposeSignup, nil, nil)
	return nil
}

// VerifySignupOTP consumes the signup code, creates the account and issues
// an access token. The account is created only after the code checks out,
// and the directory's uniqueness constraint settles concurrent signups for
// the same address: exactly one wins, the others get ErrAccountExists.
func (e *Engine) VerifySignupOTP(ctx context.Context, email, code, name string) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}

	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || code == "" {
		return AuthResult{}, ErrValidation
	}

	start := e.now()
	outcome, err := e.challenges.Verify(ctx, ChannelEmail, email, PurposeSignup, code)
	e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))
	if err != nil {
		return AuthResult{}, err
	}
	if outcome.Status != VerifyOK {
		return AuthResult{}, e.recordVerifyFailure(ctx, PurposeSignup, outcome)
	}

	if _, err := e.directory.FindByEmail(ctx, email); err == nil {
		return AuthResult{}, e.signupConflict(ctx)
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, directoryErr(err)
	}

	verifiedAt := e.now().UTC()
	user, err := e.directory.Create(ctx, NewUser{
		Email: email,
		Name:  name,
		Providers: ProviderFlags{
			EmailOTPVerified: true,
			EmailOTPAt:       verifiedAt,
		},
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return AuthResult{}, e.signupConflict(ctx)
		}
		return AuthResult{}, directoryErr(err)
	}

	result, err := e.issueFor(user)
	if err != nil {
		return AuthResult{}, err
	}

	e.metricInc(MetricSignupCompleted)
	e.emitAudit(ctx, auditEventSignupCompleted, true, user.ID, ChannelEmail, PurposeSignup, nil, nil)
	return result, nil
}

func (e *Engine) signupConflict(ctx context.Context) error {
	e.metricInc(MetricSignupConflict)
	e.emitAudit(ctx, auditEventSignupConflict, false, "", ChannelEmail, PurposeSignup, ErrAccountExists, nil)
	return ErrAccountExists
}

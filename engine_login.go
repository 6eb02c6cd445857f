package otpauth

import (
	"context"
	"errors"
)

// RequestLoginOTP issues a login code for an existing account. Unknown
// addresses fail with ErrUserNotFound and get no code.
func (e *Engine) RequestLoginOTP(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = NormalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginUnknownAccount)
			e.emitAudit(ctx, auditEventLoginUnknownAccount, false, "", ChannelEmail, PurposeLogin, err, nil)
		}
		return directoryErr(err)
	}

	code, expiresAt, err := e.challenges.Create(ctx, ChannelEmail, email, PurposeLogin)
	if err != nil {
		return err
	}

	e.deliver(ctx, Notification{
		Channel:   ChannelEmail,
		Recipient: email,
		Name:      user.Name,
		Purpose:   PurposeLogin,
		Code:      code,
		ExpiresAt: expiresAt,
		TTL:       e.config.OTP.TTL,
	})

	e.metricInc(MetricLoginOTPRequested)
	e.emitAudit(ctx, auditEventLoginOTPRequested, true, user.ID, ChannelEmail, PurposeLogin, nil, nil)
	return nil
}

// VerifyLoginOTP consumes the login code and issues an access token for the
// account owning the address.
func (e *Engine) VerifyLoginOTP(ctx context.Context, email, code string) (AuthResult, error) {
	if err := e.ready(); err != nil {
		return AuthResult{}, err
	}

	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return AuthResult{}, ErrValidation
	}

	start := e.now()
	outcome, err := e.challenges.Verify(ctx, ChannelEmail, email, PurposeLogin, code)
	e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))
	if err != nil {
		return AuthResult{}, err
	}
	if outcome.Status != VerifyOK {
		return AuthResult{}, e.recordVerifyFailure(ctx, PurposeLogin, outcome)
	}

	user, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, directoryErr(err)
	}

	result, err := e.issueFor(user)
	if err != nil {
		return AuthResult{}, err
	}

	e.metricInc(MetricLoginCompleted)
	e.emitAudit(ctx, auditEventLoginCompleted, true, user.ID, ChannelEmail, PurposeLogin, nil, nil)
	return result, nil
}

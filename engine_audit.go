package otpauth

import (
	"context"
	"errors"
)

const (
	auditEventSignupOTPRequested  = "signup_otp_requested"
	auditEventSignupConflict      = "signup_conflict"
	auditEventSignupCompleted     = "signup_completed"
	auditEventLoginOTPRequested   = "login_otp_requested"
	auditEventLoginUnknownAccount = "login_unknown_account"
	auditEventLoginCompleted      = "login_completed"
	auditEventOTPVerifyFailed     = "otp_verify_failed"
	auditEventDeliveryFailed      = "otp_delivery_failed"
	auditEventRateLimitTriggered  = "rate_limit_triggered"
	auditEventTokenRejected       = "token_rejected"
)

// AuditErrorCode is the stable error label written on failed audit events.
type AuditErrorCode string

const (
	auditErrValidation      AuditErrorCode = "validation"
	auditErrDuplicate       AuditErrorCode = "duplicate"
	auditErrUserNotFound    AuditErrorCode = "user_not_found"
	auditErrOTPNotFound     AuditErrorCode = "otp_not_found"
	auditErrOTPExpired      AuditErrorCode = "otp_expired"
	auditErrOTPMaxAttempts  AuditErrorCode = "otp_max_attempts"
	auditErrOTPInvalid      AuditErrorCode = "otp_invalid"
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrDeliveryFailure AuditErrorCode = "delivery_failure"
	auditErrInternal        AuditErrorCode = "internal_error"
)

var errDelivery = errors.New("otp delivery failed")

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	channel Channel,
	purpose Purpose,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Channel:   channel,
		Purpose:   purpose,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, source string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{"source": source}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPMaxAttempts):
		return auditErrOTPMaxAttempts
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrChallengeUnavailable),
		errors.Is(err, ErrDirectoryUnavailable),
		errors.Is(err, ErrLimiterUnavailable):
		return auditErrUnavailable
	case errors.Is(err, errDelivery):
		return auditErrDeliveryFailure
	default:
		return auditErrInternal
	}
}

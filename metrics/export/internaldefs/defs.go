package internaldefs

import (
	"github.com/MrEthical07/otpauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   otpauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: otpauth.MetricSignupOTPRequested, Name: "otpauth_signup_otp_requested_total", Help: "Signup codes issued."},
	{ID: otpauth.MetricSignupCompleted, Name: "otpauth_signup_completed_total", Help: "Accounts created by signup verification."},
	{ID: otpauth.MetricSignupConflict, Name: "otpauth_signup_conflict_total", Help: "Signup attempts for an already registered email."},
	{ID: otpauth.MetricLoginOTPRequested, Name: "otpauth_login_otp_requested_total", Help: "Login codes issued."},
	{ID: otpauth.MetricLoginCompleted, Name: "otpauth_login_completed_total", Help: "Successful login verifications."},
	{ID: otpauth.MetricLoginUnknownAccount, Name: "otpauth_login_unknown_account_total", Help: "Login code requests for unknown emails."},
	{ID: otpauth.MetricOTPVerifyInvalid, Name: "otpauth_otp_verify_invalid_total", Help: "Verifications with a wrong code."},
	{ID: otpauth.MetricOTPVerifyExpired, Name: "otpauth_otp_verify_expired_total", Help: "Verifications against an expired challenge."},
	{ID: otpauth.MetricOTPVerifyNotFound, Name: "otpauth_otp_verify_not_found_total", Help: "Verifications with no live challenge."},
	{ID: otpauth.MetricOTPMaxAttempts, Name: "otpauth_otp_max_attempts_total", Help: "Verifications refused because the attempt budget is spent."},
	{ID: otpauth.MetricNotifyFailure, Name: "otpauth_notify_failure_total", Help: "Code deliveries that failed."},
	{ID: otpauth.MetricRateLimitHit, Name: "otpauth_rate_limit_hit_total", Help: "Requests refused by the rate limiter."},
	{ID: otpauth.MetricTokenIssued, Name: "otpauth_token_issued_total", Help: "Access tokens issued."},
	{ID: otpauth.MetricTokenRejected, Name: "otpauth_token_rejected_total", Help: "Bearer tokens rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: otpauth.MetricVerifyLatency, Name: "otpauth_otp_verify_latency_seconds", Help: "Challenge verification latency."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "otpauth_audit_dropped_total"

// HistogramBounds are the upper bounds in seconds of all but the last
// bucket; the last bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket including +Inf, for exporters that
// publish one gauge per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

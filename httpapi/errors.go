package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
	"github.com/MrEthical07/otpauth/validation"
)

// Stable error codes returned in the "error" field.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeEmailExists      = "EMAIL_EXISTS"
	CodeEmailNotFound    = "EMAIL_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeOTPNotFound      = "OTP_NOT_FOUND"
	CodeOTPExpired       = "OTP_EXPIRED"
	CodeOTPMaxAttempts   = "OTP_MAX_ATTEMPTS"
	CodeOTPInvalid       = "OTP_INVALID"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNoToken          = middleware.CodeNoToken
	CodeInvalidToken     = middleware.CodeInvalidToken
	CodeRateLimited      = middleware.CodeRateLimited
	CodeServerError      = middleware.CodeServerError
)

type errorResponse struct {
	Error        string            `json:"error"`
	Details      map[string]string `json:"details,omitempty"`
	AttemptsLeft *int              `json:"attemptsLeft,omitempty"`
	Hint         string            `json:"hint,omitempty"`
}

// mapError converts an engine error into a status and body. The boolean
// reports whether the error is unexpected and must be logged.
func mapError(err error) (int, errorResponse, bool) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorResponse{Error: CodeValidation, Details: verr.Fields}, false
	}

	switch {
	case errors.Is(err, otpauth.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: CodeValidation}, false

	case errors.Is(err, otpauth.ErrAccountExists):
		return http.StatusConflict, errorResponse{Error: CodeEmailExists}, false

	case errors.Is(err, otpauth.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: CodeEmailNotFound}, false

	case errors.Is(err, otpauth.ErrOTPNotFound):
		return http.StatusBadRequest, errorResponse{Error: CodeOTPNotFound}, false
	case errors.Is(err, otpauth.ErrOTPExpired):
		return http.StatusBadRequest, errorResponse{Error: CodeOTPExpired}, false
	case errors.Is(err, otpauth.ErrOTPMaxAttempts):
		return http.StatusBadRequest, errorResponse{Error: CodeOTPMaxAttempts}, false
	case errors.Is(err, otpauth.ErrOTPInvalid):
		resp := errorResponse{Error: CodeOTPInvalid}
		var otpErr *otpauth.OTPError
		if errors.As(err, &otpErr) {
			left := otpErr.AttemptsLeft
			resp.AttemptsLeft = &left
		}
		return http.StatusBadRequest, resp, false

	case errors.Is(err, otpauth.ErrNoToken):
		return http.StatusUnauthorized, errorResponse{Error: CodeNoToken}, false
	case errors.Is(err, otpauth.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{Error: CodeInvalidToken}, false

	case errors.Is(err, otpauth.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: CodeRateLimited}, false

	default:
		return http.StatusInternalServerError, errorResponse{Error: CodeServerError}, true
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, unexpected := mapError(err)
	if unexpected {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

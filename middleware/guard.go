package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpauth"
)

// Authenticator verifies bearer tokens. *otpauth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (otpauth.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (otpauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(otpauth.Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id otpauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Guard rejects requests without a valid bearer token. A missing token
// yields 401 NO_TOKEN; any other token failure yields 401 INVALID_TOKEN.
func Guard(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, http.StatusInternalServerError, CodeServerError)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeNoToken)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, otpauth.ErrNoToken):
				writeError(w, http.StatusUnauthorized, CodeNoToken)
				return
			case errors.Is(err, otpauth.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, CodeInvalidToken)
				return
			default:
				logger.ErrorContext(r.Context(), "authenticate bearer token", "error", err)
				writeError(w, http.StatusInternalServerError, CodeServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

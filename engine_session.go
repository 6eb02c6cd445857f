package otpauth

import (
	"context"
	"strings"
)

// Authenticate verifies a bearer token and returns the identity it proves.
// An empty token yields ErrNoToken. Every other failure, whether the token
// is malformed, expired or badly signed, yields ErrInvalidToken.
func (e *Engine) Authenticate(ctx context.Context, token string) (Identity, error) {
	if e == nil || e.tokens == nil {
		return Identity{}, ErrEngineNotReady
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrNoToken
	}

	claims, err := e.tokens.Parse(token)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", "", ErrInvalidToken, nil)
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}

// CurrentUser loads the account behind an authenticated identity.
func (e *Engine) CurrentUser(ctx context.Context, userID string) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	if userID == "" {
		return User{}, ErrUserNotFound
	}

	user, err := e.directory.FindByID(ctx, userID)
	if err != nil {
		return User{}, directoryErr(err)
	}
	return user, nil
}

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
	"github.com/MrEthical07/otpauth/validation"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service is the engine surface the handlers call. *otpauth.Engine
// implements it.
type Service interface {
	RequestSignupOTP(ctx context.Context, email, name string) error
	VerifySignupOTP(ctx context.Context, email, code, name string) (otpauth.AuthResult, error)
	RequestLoginOTP(ctx context.Context, email string) error
	VerifyLoginOTP(ctx context.Context, email, code string) (otpauth.AuthResult, error)
	CurrentUser(ctx context.Context, userID string) (otpauth.User, error)

	middleware.Authenticator
	middleware.Limiter
}

// Options configures NewRouter.
type Options struct {
	Service   Service
	Validator *validation.Validator
	Logger    *slog.Logger

	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	RequestTimeout    time.Duration

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	Now func() time.Time
}

// NewRouter builds the HTTP handler for opts.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Validator == nil {
		opts.Validator = validation.New(otpauth.DefaultConfig().OTP.Digits)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &handler{
		service:   opts.Service,
		validator: opts.Validator,
		logger:    opts.Logger,
		now:       opts.Now,
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(accessLog(opts.Logger))
	r.Use(recoverer(opts.Logger))
	r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))
	if opts.RequestTimeout > 0 {
		r.Use(deadline(opts.RequestTimeout))
	}
	r.Use(middleware.ClientIP(middleware.RemoteIP))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: CodeNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: CodeMethodNotAllowed})
	})

	r.Get("/api/health", h.health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.Service, middleware.RemoteIP, opts.Now, opts.Logger))

		r.Post("/signup/email/request-otp", h.signupRequestOTP)
		r.Post("/signup/email/verify-otp", h.signupVerifyOTP)
		r.Post("/login/email/request-otp", h.loginRequestOTP)
		r.Post("/login/email/verify-otp", h.loginVerifyOTP)
	})

	r.With(middleware.Guard(opts.Service, opts.Logger)).Get("/api/users/me", h.me)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	return r
}

func corsOptions(origins []string) cors.Options {
	allowed := origins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           300,
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []otpauth.Notification
}

func (n *captureNotifier) Notify(_ context.Context, msg otpauth.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "expected a notification")
	return n.sent[len(n.sent)-1].Code
}

type testServer struct {
	srv      *httptest.Server
	notifier *captureNotifier
	dir      *directory.Memory
}

func testConfig() otpauth.Config {
	cfg := otpauth.DefaultConfig()
	cfg.OTP.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.PrivateKey = []byte("fedcba9876543210fedcba9876543210")
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg otpauth.Config) *testServer {
	t.Helper()

	ts := &testServer{notifier: &captureNotifier{}, dir: directory.NewMemory(nil)}

	engine, err := otpauth.New().
		WithConfig(cfg).
		WithAccountDirectory(ts.dir).
		WithNotifier(ts.notifier).
		WithLogger(discardLogger()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ts.srv = httptest.NewServer(NewRouter(Options{Service: engine, Logger: discardLogger()}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSignupScenario(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, body := ts.do(t, http.MethodPost, "/api/auth/signup/email/request-otp", "", map[string]string{"email": "a@b.com", "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, body)

	code := ts.notifier.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	resp, body = ts.do(t, http.MethodPost, "/api/auth/signup/email/verify-otp", "", map[string]string{"email": "a@b.com", "otp": wrong, "name": "Ann"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "OTP_INVALID", "attemptsLeft": float64(4)}, body)

	resp, body = ts.do(t, http.MethodPost, "/api/auth/signup/email/verify-otp", "", map[string]string{"email": "a@b.com", "otp": code, "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, user, "phone")

	resp, body = ts.do(t, http.MethodPost, "/api/auth/signup/email/verify-otp", "", map[string]string{"email": "a@b.com", "otp": code, "name": "Ann"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "OTP_NOT_FOUND"}, body)

	resp, body = ts.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, user["id"], body["id"])
	assert.Equal(t, "a@b.com", body["email"])

	assert.Equal(t, 1, ts.dir.Len())
}

func TestLoginUnknownEmail(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, body := ts.do(t, http.MethodPost, "/api/auth/login/email/request-otp", "", map[string]string{"email": "nobody@x.com"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "EMAIL_NOT_FOUND", body["error"])
}

func TestLoginScenario(t *testing.T) {
	ts := newTestServer(t, testConfig())

	_, err := ts.dir.Create(context.Background(), otpauth.NewUser{Email: "ann@example.com", Phone: "+15550001", Name: "Ann"})
	require.NoError(t, err)

	resp, _ := ts.do(t, http.MethodPost, "/api/auth/login/email/request-otp", "", map[string]string{"email": "Ann@Example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/auth/login/email/verify-otp", "", map[string]string{"email": "ann@example.com", "otp": ts.notifier.lastCode(t)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "+15550001", user["phone"])
	assert.NotEmpty(t, body["accessToken"])
}

func TestSignupConflict(t *testing.T) {
	ts := newTestServer(t, testConfig())

	_, err := ts.dir.Create(context.Background(), otpauth.NewUser{Email: "a@b.com", Name: "Ann"})
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodPost, "/api/auth/signup/email/request-otp", "", map[string]string{"email": "A@B.com", "name": "Ann"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "EMAIL_EXISTS"}, body)
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, body := ts.do(t, http.MethodPost, "/api/auth/signup/email/request-otp", "", map[string]string{"email": "not-an-email", "name": "A"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	details, _ := body["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "name")

	resp, body = ts.do(t, http.MethodPost, "/api/auth/login/email/verify-otp", "", map[string]string{"email": "a@b.com", "otp": "12ab56"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	details, _ = body["details"].(map[string]any)
	assert.Contains(t, details, "otp")

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/auth/login/email/request-otp", bytes.NewBufferString("{"))
	require.NoError(t, err)
	raw, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestUsersMeRequiresToken(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, body := ts.do(t, http.MethodGet, "/api/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NO_TOKEN", body["error"])

	resp, body = ts.do(t, http.MethodGet, "/api/users/me", "not.a.jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"])
}

func TestRateLimitOnAuthRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 2
	ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		resp, _ := ts.do(t, http.MethodPost, "/api/auth/login/email/request-otp", "", map[string]string{"email": "nobody@x.com"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("RateLimit-Limit"))
	}

	resp, body := ts.do(t, http.MethodPost, "/api/auth/signup/email/request-otp", "", map[string]string{"email": "a@b.com", "name": "Ann"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Health is not limited.
	resp, body = ts.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	_, err := time.Parse(time.RFC3339Nano, body["time"].(string))
	assert.NoError(t, err)
}

type brokenService struct {
	err   error
	panic bool
}

func (b brokenService) RequestSignupOTP(context.Context, string, string) error {
	if b.panic {
		panic("boom")
	}
	return b.err
}

func (b brokenService) VerifySignupOTP(context.Context, string, string, string) (otpauth.AuthResult, error) {
	return otpauth.AuthResult{}, b.err
}

func (b brokenService) RequestLoginOTP(context.Context, string) error { return b.err }

func (b brokenService) VerifyLoginOTP(context.Context, string, string) (otpauth.AuthResult, error) {
	return otpauth.AuthResult{}, b.err
}

func (b brokenService) CurrentUser(context.Context, string) (otpauth.User, error) {
	return otpauth.User{}, b.err
}

func (b brokenService) Authenticate(context.Context, string) (otpauth.Identity, error) {
	return otpauth.Identity{UserID: "u1"}, nil
}

func (b brokenService) Allow(context.Context, string) (otpauth.RateDecision, error) {
	return otpauth.RateDecision{Allowed: true}, nil
}

func TestUnexpectedErrorsAreOpaque(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	for name, svc := range map[string]brokenService{
		"error": {err: errors.New("dial tcp 10.0.0.5:5432: connection refused")},
		"panic": {panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			logs.Reset()
			router := NewRouter(Options{Service: svc, Logger: logger})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/signup/email/request-otp", bytes.NewBufferString(`{"email":"a@b.com","name":"Ann"}`))
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"SERVER_ERROR"}`, rec.Body.String())
			assert.NotEmpty(t, logs.String())
		})
	}
}

func TestUsersMeDeletedAccount(t *testing.T) {
	router := NewRouter(Options{Service: brokenService{err: otpauth.ErrUserNotFound}, Logger: discardLogger()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"NOT_FOUND"}`, rec.Body.String())
}

func TestMapError(t *testing.T) {
	status, body, unexpected := mapError(&otpauth.OTPError{Err: otpauth.ErrOTPInvalid, AttemptsLeft: 0})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body.AttemptsLeft)
	assert.Equal(t, 0, *body.AttemptsLeft)
	assert.False(t, unexpected)

	for err, code := range map[error]string{
		otpauth.ErrOTPExpired:     CodeOTPExpired,
		otpauth.ErrOTPMaxAttempts: CodeOTPMaxAttempts,
		otpauth.ErrRateLimited:    CodeRateLimited,
		otpauth.ErrInvalidToken:   CodeInvalidToken,
	} {
		_, body, _ := mapError(err)
		assert.Equal(t, code, body.Error)
	}

	_, body, unexpected = mapError(otpauth.ErrChallengeUnavailable)
	assert.Equal(t, CodeServerError, body.Error)
	assert.True(t, unexpected)
}

type slowService struct {
	brokenService
}

func (slowService) RequestSignupOTP(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRequestDeadlineAnswersWithServerError(t *testing.T) {
	silent := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	router := NewRouter(Options{
		Service:        slowService{},
		Logger:         discardLogger(),
		RequestTimeout: 20 * time.Millisecond,
		Metrics:        silent,
	})

	for name, req := range map[string]*http.Request{
		"handler returns context error": httptest.NewRequest(http.MethodPost, "/api/auth/signup/email/request-otp", bytes.NewBufferString(`{"email":"a@b.com","name":"Ann"}`)),
		"handler writes nothing":        httptest.NewRequest(http.MethodGet, "/metrics", nil),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"SERVER_ERROR"}`, rec.Body.String())
		})
	}
}

func TestTrustProxyHeadersKeysRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 1

	for _, trust := range []bool{false, true} {
		engine, err := otpauth.New().
			WithConfig(cfg).
			WithAccountDirectory(directory.NewMemory(nil)).
			WithNotifier(&captureNotifier{}).
			WithLogger(discardLogger()).
			Build()
		require.NoError(t, err)
		t.Cleanup(engine.Close)

		router := NewRouter(Options{Service: engine, Logger: discardLogger(), TrustProxyHeaders: trust})

		codes := make([]int, 0, 2)
		for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login/email/request-otp", bytes.NewBufferString(`{"email":"nobody@x.com"}`))
			req.Header.Set("X-Forwarded-For", ip)
			router.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}

		if trust {
			assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound}, codes, "each forwarded client has its own window")
		} else {
			assert.Equal(t, []int{http.StatusNotFound, http.StatusTooManyRequests}, codes, "forwarded headers are ignored")
		}
	}
}

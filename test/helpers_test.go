//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/directory"
	"github.com/MrEthical07/otpauth/httpapi"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend a suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis, plus a real Redis when REDIS_ADDR
// is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()

	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}

	return modes
}

// accountDirectory returns a Postgres directory when DATABASE_URL is set,
// and an in-memory one otherwise.
func accountDirectory(t *testing.T) otpauth.AccountDirectory {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return directory.NewMemory(nil)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("cannot connect to Postgres: %v", err)
	}
	if err := directory.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE users"); err != nil {
		t.Fatalf("truncate users: %v", err)
	}
	return directory.NewPostgres(pool)
}

type mailbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newMailbox() *mailbox {
	return &mailbox{codes: map[string]string{}}
}

func (m *mailbox) Notify(_ context.Context, n otpauth.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[n.Recipient] = n.Code
	return nil
}

func (m *mailbox) code(t *testing.T, recipient string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[recipient]
	if !ok {
		t.Fatalf("no code delivered to %s", recipient)
	}
	return code
}

func testConfig() otpauth.Config {
	cfg := otpauth.DefaultConfig()
	cfg.OTP.Secret = []byte("integration-otp-secret-0123456789")
	cfg.JWT.PrivateKey = []byte("integration-jwt-secret-0123456789")
	cfg.Metrics.Enabled = true
	return cfg
}

// newInstance starts one API server over the shared rdb and accounts.
func newInstance(t *testing.T, cfg otpauth.Config, rdb redis.UniversalClient, accounts otpauth.AccountDirectory, box *mailbox) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := otpauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountDirectory(accounts).
		WithNotifier(box).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Options{Service: engine, Logger: logger}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) (int, map[string]any) {
	t.Helper()
	status, out, err := tryPostJSON(srv, path, body)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return status, out
}

// tryPostJSON is safe to call from worker goroutines.
func tryPostJSON(srv *httptest.Server, path string, body any) (int, map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, out, nil
}

func getJSON(t *testing.T, srv *httptest.Server, path, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, srv, req)
}

func send(t *testing.T, srv *httptest.Server, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

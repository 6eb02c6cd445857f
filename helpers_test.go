package otpauth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OTP.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.PrivateKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeDirectory enforces email uniqueness under its lock, like a unique
// index would.
type fakeDirectory struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
	seq     atomic.Int64
	failAll error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return User{}, d.failAll
	}
	u, ok := d.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return User{}, d.failAll
	}
	id, ok := d.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return d.byID[id], nil
}

func (d *fakeDirectory) FindByPhone(_ context.Context, phone string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if phone != "" && u.Phone == phone {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (d *fakeDirectory) Create(_ context.Context, nu NewUser) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return User{}, d.failAll
	}
	if _, ok := d.byEmail[nu.Email]; ok {
		return User{}, ErrAccountExists
	}
	u := User{
		ID:        "u" + strconv.FormatInt(d.seq.Add(1), 10),
		Email:     nu.Email,
		Phone:     nu.Phone,
		Name:      nu.Name,
		Providers: nu.Providers,
		CreatedAt: time.Now().UTC(),
	}
	d.byID[u.ID] = u
	d.byEmail[u.Email] = u.ID
	return u, nil
}

func (d *fakeDirectory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *captureNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected a notification")
	}
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testDeps struct {
	directory *fakeDirectory
	notifier  *captureNotifier
	clock     *fakeClock
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *testDeps, *Builder) {
	t.Helper()

	deps := &testDeps{
		directory: newFakeDirectory(),
		notifier:  &captureNotifier{},
		clock:     newFakeClock(),
	}
	b := New().
		WithConfig(cfg).
		WithAccountDirectory(deps.directory).
		WithNotifier(deps.notifier).
		WithClock(deps.clock.Now)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, deps, b
}

var errBackendDown = errors.New("backend down")

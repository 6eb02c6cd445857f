package directory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/google/uuid"
)

// Memory is an in-process AccountDirectory.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]otpauth.User
	byEmail map[string]string
	byPhone map[string]string
	now     func() time.Time
}

// NewMemory returns an empty directory. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		byID:    make(map[string]otpauth.User),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
		now:     now,
	}
}

func (m *Memory) FindByID(_ context.Context, id string) (otpauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	return user, nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (otpauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lookup(m.byEmail, otpauth.NormalizeEmail(email))
}

func (m *Memory) FindByPhone(_ context.Context, phone string) (otpauth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lookup(m.byPhone, phone)
}

func (m *Memory) lookup(index map[string]string, value string) (otpauth.User, error) {
	if value == "" {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	id, ok := index[value]
	if !ok {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	return m.byID[id], nil
}

// Create inserts a new account. Email and non-empty phone must be unused.
func (m *Memory) Create(_ context.Context, in otpauth.NewUser) (otpauth.User, error) {
	email := otpauth.NormalizeEmail(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[email]; taken {
		return otpauth.User{}, otpauth.ErrAccountExists
	}
	if in.Phone != "" {
		if _, taken := m.byPhone[in.Phone]; taken {
			return otpauth.User{}, otpauth.ErrAccountExists
		}
	}

	user := otpauth.User{
		ID:        uuid.NewString(),
		Email:     email,
		Phone:     in.Phone,
		Name:      in.Name,
		Providers: in.Providers,
		CreatedAt: m.now().UTC(),
	}

	m.byID[user.ID] = user
	m.byEmail[email] = user.ID
	if in.Phone != "" {
		m.byPhone[in.Phone] = user.ID
	}
	return user, nil
}

// Len returns the number of stored accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id::text, email, phone, name,
	email_otp_verified, email_otp_at, phone_otp_verified, phone_otp_at,
	external_subject, external_email_verified, created_at`

const (
	selectUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	selectUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	selectUserByPhone = `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

	insertUser = `
		INSERT INTO users (id, email, phone, name,
			email_otp_verified, email_otp_at, phone_otp_verified, phone_otp_at,
			external_subject, external_email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the directory needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores accounts in the users table.
type Postgres struct {
	db DBTX
}

// NewPostgres returns a directory backed by db, typically a *pgxpool.Pool.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindByID(ctx context.Context, id string) (otpauth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	return p.findOne(ctx, selectUserByID, id)
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (otpauth.User, error) {
	email = otpauth.NormalizeEmail(email)
	if email == "" {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	return p.findOne(ctx, selectUserByEmail, email)
}

func (p *Postgres) FindByPhone(ctx context.Context, phone string) (otpauth.User, error) {
	if phone == "" {
		return otpauth.User{}, otpauth.ErrUserNotFound
	}
	return p.findOne(ctx, selectUserByPhone, phone)
}

// Create inserts a new account. A unique violation on email or phone is
// reported as otpauth.ErrAccountExists.
func (p *Postgres) Create(ctx context.Context, in otpauth.NewUser) (otpauth.User, error) {
	user := otpauth.User{
		ID:        uuid.NewString(),
		Email:     otpauth.NormalizeEmail(in.Email),
		Phone:     in.Phone,
		Name:      in.Name,
		Providers: in.Providers,
	}

	err := p.db.QueryRow(ctx, insertUser,
		user.ID,
		user.Email,
		nullString(user.Phone),
		user.Name,
		in.Providers.EmailOTPVerified,
		nullTime(in.Providers.EmailOTPAt),
		in.Providers.PhoneOTPVerified,
		nullTime(in.Providers.PhoneOTPAt),
		nullString(in.Providers.ExternalSubject),
		in.Providers.ExternalEmailVerified,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return otpauth.User{}, otpauth.ErrAccountExists
		}
		return otpauth.User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (p *Postgres) findOne(ctx context.Context, query string, arg string) (otpauth.User, error) {
	var (
		user            otpauth.User
		phone           *string
		emailOTPAt      *time.Time
		phoneOTPAt      *time.Time
		externalSubject *string
	)

	err := p.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&phone,
		&user.Name,
		&user.Providers.EmailOTPVerified,
		&emailOTPAt,
		&user.Providers.PhoneOTPVerified,
		&phoneOTPAt,
		&externalSubject,
		&user.Providers.ExternalEmailVerified,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return otpauth.User{}, otpauth.ErrUserNotFound
		}
		return otpauth.User{}, fmt.Errorf("select user: %w", err)
	}

	if phone != nil {
		user.Phone = *phone
	}
	if emailOTPAt != nil {
		user.Providers.EmailOTPAt = *emailOTPAt
	}
	if phoneOTPAt != nil {
		user.Providers.PhoneOTPAt = *phoneOTPAt
	}
	if externalSubject != nil {
		user.Providers.ExternalSubject = *externalSubject
	}
	return user, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

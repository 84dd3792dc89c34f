package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
)

const userColumns = `id, email, name, password, user_type, is_active, email_verified,
	login_attempts, locked_until, coins, created_at, updated_at, last_login`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent). Tables
// created before the auth and ledger columns existed are upgraded in place.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	for _, stmt := range usersSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var usersSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL,
  password TEXT NOT NULL,
  user_type TEXT NOT NULL CHECK (user_type IN ('farmer', 'buyer', 'admin')),
  is_active BOOLEAN NOT NULL DEFAULT true,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  login_attempts INT NOT NULL DEFAULT 0 CHECK (login_attempts >= 0),
  locked_until TIMESTAMPTZ,
  coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_login TIMESTAMPTZ
)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS is_active BOOLEAN NOT NULL DEFAULT true`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS email_verified BOOLEAN NOT NULL DEFAULT false`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS login_attempts INT NOT NULL DEFAULT 0`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS locked_until TIMESTAMPTZ`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS coins BIGINT NOT NULL DEFAULT 0`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS last_login TIMESTAMPTZ`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))`,
	`CREATE INDEX IF NOT EXISTS idx_users_user_type ON users (user_type)`,
}

// userRow mirrors the column list; the password column is classified when
// converted to an entity.
type userRow struct {
	ID            string     `db:"id"`
	Email         string     `db:"email"`
	Name          string     `db:"name"`
	Password      string     `db:"password"`
	UserType      string     `db:"user_type"`
	IsActive      bool       `db:"is_active"`
	EmailVerified bool       `db:"email_verified"`
	LoginAttempts int        `db:"login_attempts"`
	LockedUntil   *time.Time `db:"locked_until"`
	Coins         int64      `db:"coins"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	LastLogin     *time.Time `db:"last_login"`
}

func (row userRow) toEntity() *entity.User {
	return &entity.User{
		ID:            row.ID,
		Email:         row.Email,
		Name:          row.Name,
		Password:      entity.ParseStoredPassword(row.Password),
		UserType:      entity.UserType(row.UserType),
		IsActive:      row.IsActive,
		EmailVerified: row.EmailVerified,
		LoginAttempts: row.LoginAttempts,
		LockedUntil:   row.LockedUntil,
		Coins:         row.Coins,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastLogin:     row.LastLogin,
	}
}

// Create inserts a new user row and fills in the generated id. The email
// must already be normalized.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	const q = `INSERT INTO users (id, email, name, password, user_type, is_active, email_verified,
		login_attempts, coins, created_at, updated_at, last_login)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $8, $9)`
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Email, u.Name, u.Password.Value(), string(u.UserType),
		u.IsActive, u.EmailVerified, u.CreatedAt, u.LastLogin)
	return err
}

// GetByEmail returns a user matched by normalized email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// List returns users ordered by email, restricted to emails when non-empty.
func (r *UserRepo) List(ctx context.Context, emails []string) ([]*entity.User, error) {
	b := sq.Select(userColumns).From("users").OrderBy("email ASC").PlaceholderFormat(sq.Dollar)
	if len(emails) > 0 {
		b = b.Where(sq.Eq{"lower(email)": emails})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*entity.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// EmailTaken reports whether another user (not excludeID) owns email.
func (r *UserRepo) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	if excludeID == "" {
		const q = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`
		err := r.db.GetContext(ctx, &taken, q, email)
		return taken, err
	}
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1 AND id <> $2)`
	err := r.db.GetContext(ctx, &taken, q, email, excludeID)
	return taken, err
}

// FailedLogin is the counter state after RecordFailedLogin.
type FailedLogin struct {
	Attempts    int
	LockedUntil *time.Time
}

// RecordFailedLogin increments the failure counter under a row lock and sets
// locked_until once the counter reaches threshold. An expired lock restarts
// the count.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*FailedLogin, error) {
	var out FailedLogin
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var cur struct {
			LoginAttempts int        `db:"login_attempts"`
			LockedUntil   *time.Time `db:"locked_until"`
		}
		const sel = `SELECT login_attempts, locked_until FROM users WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &cur, sel, id); err != nil {
			return err
		}
		attempts := cur.LoginAttempts
		lockedUntil := cur.LockedUntil
		if lockedUntil != nil && !lockedUntil.After(now) {
			attempts = 0
			lockedUntil = nil
		}
		attempts++
		if attempts >= threshold {
			until := now.Add(lockFor)
			lockedUntil = &until
		}
		const upd = `UPDATE users SET login_attempts = $2, locked_until = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, upd, id, attempts, lockedUntil, now); err != nil {
			return err
		}
		out = FailedLogin{Attempts: attempts, LockedUntil: lockedUntil}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE users SET login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, now)
	return err
}

// UpdatePassword stores a new hash. clearLockout also resets the failure counter.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string, clearLockout bool, now time.Time) error {
	if clearLockout {
		const q = `UPDATE users SET password = $2, login_attempts = 0, locked_until = NULL, updated_at = $3 WHERE id = $1`
		return r.execOne(ctx, q, id, hash, now)
	}
	const q = `UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, q, id, hash, now)
}

// UpdateProfile applies the non-nil fields and returns the updated row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, name, email *string, now time.Time) (*entity.User, error) {
	b := sq.Update("users").PlaceholderFormat(sq.Dollar)
	if name != nil {
		b = b.Set("name", *name)
	}
	if email != nil {
		b = b.Set("email", *email)
	}
	q, args, err := b.Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + userColumns).
		ToSql()
	if err != nil {
		return nil, err
	}
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// SetActive toggles the soft-disable flag.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	const q = `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, q, id, active, now)
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNoRows reports a missing row.
func IsNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

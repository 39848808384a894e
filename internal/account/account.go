// Package account provides the identity provider for the Multiplier API:
// users who can log in and own records, their administrator flag, and a
// per-user key/value attribute store.
//
// The attribute store carries the membership signal consumed by the
// access classifier:
//   - patreon_pledge_amount_cents: stored pledge amount (integer text)
//   - patreon_user_id:             membership account id
//   - patreon_user:                legacy structured record {"data":{"id":...}}
//   - patreon_email:               membership contact address
//   - patreon_access_token:        token used by the richer membership lookup
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// Sentinel errors for account operations.
var (
	ErrNotFound        = errors.New("account: not found")
	ErrLoginTaken      = errors.New("account: login already taken")
	ErrInvalidPassword = errors.New("account: invalid password")
)

// User is an account that can log in. The password hash never leaves
// this package.
type User struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// CreateParams holds the parameters for creating a new user.
type CreateParams struct {
	Login    string
	Email    string
	Password string // plaintext, will be hashed
	IsAdmin  bool
}

// Store provides user and attribute operations.
type Store struct {
	db *database.DB
}

// NewStore creates an account Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user with a bcrypt-hashed password.
// Returns ErrLoginTaken if the login already exists.
func (s *Store) Create(ctx context.Context, p CreateParams) (*User, error) {
	login := strings.ToLower(strings.TrimSpace(p.Login))
	if login == "" {
		return nil, fmt.Errorf("account: create: login is required")
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("account: create: %w", err)
	}

	var u User
	err = s.db.SQL.QueryRowContext(ctx,
		`INSERT INTO users (login, email, password_hash, is_admin)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, login, email, is_admin`,
		login, p.Email, hash, p.IsAdmin,
	).Scan(&u.ID, &u.Login, &u.Email, &u.IsAdmin)
	if database.IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrLoginTaken, login)
	}
	if err != nil {
		return nil, fmt.Errorf("account: create %q: %w", login, err)
	}
	return &u, nil
}

// Get returns a user by id. Returns ErrNotFound if no user matches.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.SQL.QueryRowContext(ctx,
		`SELECT id, login, email, is_admin FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Login, &u.Email, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("account: get %d: %w", id, err)
	}
	return &u, nil
}

// VerifyPassword checks the password for the user identified by login.
// Returns the User on success, ErrNotFound for an unknown login and
// ErrInvalidPassword on mismatch.
func (s *Store) VerifyPassword(ctx context.Context, login, password string) (*User, error) {
	login = strings.ToLower(strings.TrimSpace(login))

	var u User
	var hash string
	err := s.db.SQL.QueryRowContext(ctx,
		`SELECT id, login, email, is_admin, password_hash FROM users WHERE login = $1`, login,
	).Scan(&u.ID, &u.Login, &u.Email, &u.IsAdmin, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, login)
	}
	if err != nil {
		return nil, fmt.Errorf("account: verify password %q: %w", login, err)
	}

	if err := CheckPassword(hash, password); err != nil {
		return nil, fmt.Errorf("%w for %q", ErrInvalidPassword, login)
	}
	return &u, nil
}

// UserMeta returns every stored attribute of a user. Unknown users
// simply have no attributes.
func (s *Store) UserMeta(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.SQL.QueryContext(ctx,
		`SELECT meta_key, meta_value FROM user_meta WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("account: user meta %d: %w", userID, err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("account: user meta scan: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// SetMeta stores one attribute, replacing any previous value.
func (s *Store) SetMeta(ctx context.Context, userID int64, key, value string) error {
	_, err := s.db.SQL.ExecContext(ctx,
		`INSERT INTO user_meta (user_id, meta_key, meta_value) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		userID, key, value)
	if err != nil {
		return fmt.Errorf("account: set meta %d/%s: %w", userID, key, err)
	}
	return nil
}

// DeleteMeta removes one attribute. Missing attributes are not an error.
func (s *Store) DeleteMeta(ctx context.Context, userID int64, key string) error {
	_, err := s.db.SQL.ExecContext(ctx,
		`DELETE FROM user_meta WHERE user_id = $1 AND meta_key = $2`, userID, key)
	if err != nil {
		return fmt.Errorf("account: delete meta %d/%s: %w", userID, key, err)
	}
	return nil
}

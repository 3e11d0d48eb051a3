package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"taskflow/internal/app/user"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the stores use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements user.Store and project.Store on PostgreSQL.
type Store struct {
	db DBTX
}

// NewStore returns a Store issuing queries on db.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// UserRow is a users row including the credential hash.
type UserRow struct {
	ID           string
	Email        string
	DisplayName  string
	AvatarURL    string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  pgtype.Timestamptz
}

// Identity returns the public snapshot of the row.
func (u UserRow) Identity() user.Identity {
	return user.Identity{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Avatar:      u.AvatarURL,
		Role:        u.Role,
		IsActive:    u.IsActive,
	}
}

const userColumns = `id::text, email, display_name, COALESCE(avatar_url, ''), password_hash, role, is_active, created_at, last_login_at`

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	return u, err
}

// CreateUserParams holds the columns set on registration.
type CreateUserParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

const createUser = `
INSERT INTO users (email, display_name, password_hash)
VALUES ($1, $2, $3)
RETURNING ` + userColumns

// CreateUser inserts a user with the default role. A duplicate email is a unique violation.
func (s *Store) CreateUser(ctx context.Context, arg CreateUserParams) (UserRow, error) {
	return scanUser(s.db.QueryRow(ctx, createUser,
		strings.ToLower(arg.Email),
		arg.DisplayName,
		arg.PasswordHash,
	))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

// GetUserByEmail returns user.ErrNotFound when no user has the email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	u, err := scanUser(s.db.QueryRow(ctx, getUserByEmail, strings.ToLower(email)))
	if isNoRows(err) {
		return UserRow{}, user.ErrNotFound
	}
	return u, err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

// GetUserByID returns user.ErrNotFound for unknown or malformed ids.
func (s *Store) GetUserByID(ctx context.Context, id string) (UserRow, error) {
	uid, ok := parseUUID(id)
	if !ok {
		return UserRow{}, user.ErrNotFound
	}

	u, err := scanUser(s.db.QueryRow(ctx, getUserByID, uid))
	if isNoRows(err) {
		return UserRow{}, user.ErrNotFound
	}
	return u, err
}

// FetchUser implements user.Store.
func (s *Store) FetchUser(ctx context.Context, id string) (user.Identity, error) {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return user.Identity{}, err
	}
	return u.Identity(), nil
}

const updateLastLogin = `UPDATE users SET last_login_at = NOW() WHERE id = $1`

// UpdateLastLogin stamps the user's last login time.
func (s *Store) UpdateLastLogin(ctx context.Context, id string) error {
	uid, ok := parseUUID(id)
	if !ok {
		return user.ErrNotFound
	}

	tag, err := s.db.Exec(ctx, updateLastLogin, uid)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

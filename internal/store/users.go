package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AvatarURL    *string   `json:"avatarUrl"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	PasswordHash string    `json:"-"`
}

const userColumns = `id, email, name, avatar_url, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (User, error) {
	var u User
	var avatar sql.NullString
	dest := append([]any{&u.ID, &u.Email, &u.Name, &avatar, &u.Role, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return u, nil
}

// CreateUser inserts a user with the default role.
func (s *Store) CreateUser(ctx context.Context, email, name, hash string) (User, error) {
	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1,$2,$3) RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(email)), name, hash)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user including its password hash.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var hash string
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email=$1`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	u.PasswordHash = hash
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

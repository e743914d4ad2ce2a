package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUsernameTaken is returned when creating a user whose name exists.
	ErrUsernameTaken = errors.New("db: username already taken")
	// ErrInvalidCredentials is returned by Authenticate for an unknown user,
	// a wrong password or an inactive account.
	ErrInvalidCredentials = errors.New("db: invalid credentials")
)

// User is an operator or member identity that can register devices.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
}

// CreateUser stores a new active user with a bcrypt hash of password.
func (db *DB) CreateUser(ctx context.Context, username, password string, isStaff bool) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      isStaff,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, is_active, is_staff, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.PasswordHash, u.IsActive, u.IsStaff, toMillis(u.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return db.getUser(ctx, `WHERE username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_active, is_staff, created_at_ms
		FROM users `+where, arg)

	u := &User{}
	var createdMs int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.IsStaff, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdMs)
	return u, nil
}

// Authenticate checks username and password and returns the active user.
func (db *DB) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// SetUserActive enables or disables a user.
func (db *DB) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. Their authorizations are kept for the access
// log with the owner reference cleared.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE authorizations SET user_id = NULL WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("detach authorizations: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Package db provides SQLite storage for authorization records and the
// operator identity directory.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite database at path and creates tables if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection keeps inserts serialized.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	if err := createTables(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func createTables(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_staff INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS authorizations (
			id TEXT PRIMARY KEY,
			user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
			mac_address TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			authorized_until_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_authorizations_created ON authorizations(created_at_ms);
		CREATE INDEX IF NOT EXISTS idx_authorizations_until ON authorizations(authorized_until_ms);
		CREATE INDEX IF NOT EXISTS idx_authorizations_user ON authorizations(user_id);
		CREATE INDEX IF NOT EXISTS idx_authorizations_mac ON authorizations(mac_address);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

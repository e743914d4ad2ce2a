package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Authorization is a time-bounded grant for one MAC address.
type Authorization struct {
	ID              string
	UserID          *string // nil for guest grants
	Username        string  // owner's username at read time, empty for guests
	MACAddress      string  // canonical aa:bb:cc:dd:ee:ff form
	CreatedAt       time.Time
	AuthorizedUntil time.Time
}

// IsGuest reports whether the grant was obtained with the guest password.
func (a *Authorization) IsGuest() bool {
	return a.UserID == nil
}

// IsActive reports whether the grant is still in force at now.
func (a *Authorization) IsActive(now time.Time) bool {
	return now.Before(a.AuthorizedUntil)
}

// CreatedAgo renders CreatedAt relative to now, e.g. "3 hours ago".
func (a *Authorization) CreatedAgo(now time.Time) string {
	return humanize.RelTime(a.CreatedAt, now, "ago", "from now")
}

// AuthorizedUntilRelative renders AuthorizedUntil relative to now, e.g.
// "5 months from now" or "2 days ago".
func (a *Authorization) AuthorizedUntilRelative(now time.Time) string {
	return humanize.RelTime(a.AuthorizedUntil, now, "ago", "from now")
}

func (a *Authorization) String() string {
	if a.IsGuest() {
		return fmt.Sprintf("Guest authorization for %s", a.MACAddress)
	}
	owner := a.Username
	if owner == "" {
		owner = *a.UserID
	}
	return fmt.Sprintf("Authorization for %s %s", owner, a.MACAddress)
}

const selectAuthorizations = `
	SELECT a.id, a.user_id, COALESCE(u.username, ''), a.mac_address, a.created_at_ms, a.authorized_until_ms
	FROM authorizations a
	LEFT JOIN users u ON u.id = a.user_id
`

const orderAuthorizations = ` ORDER BY a.created_at_ms DESC, a.authorized_until_ms DESC`

// CreateAuthorization inserts a in its own transaction. An empty ID is
// replaced with a new UUID.
func (db *DB) CreateAuthorization(ctx context.Context, a *Authorization) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO authorizations (id, user_id, mac_address, created_at_ms, authorized_until_ms)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.MACAddress, toMillis(a.CreatedAt), toMillis(a.AuthorizedUntil))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert authorization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit authorization: %w", err)
	}
	return nil
}

// GetAuthorization retrieves an authorization by ID.
func (db *DB) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	row := db.conn.QueryRowContext(ctx, selectAuthorizations+` WHERE a.id = ?`, id)
	a, err := scanAuthorization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAuthorizations returns grants that were created at or after cutoff or
// that had not yet expired at cutoff, newest first.
func (db *DB) ListAuthorizations(ctx context.Context, cutoff time.Time) ([]*Authorization, error) {
	ms := toMillis(cutoff)
	rows, err := db.conn.QueryContext(ctx, selectAuthorizations+`
		WHERE NOT (a.authorized_until_ms < ? AND a.created_at_ms < ?)
	`+orderAuthorizations, ms, ms)
	if err != nil {
		return nil, err
	}
	return collectAuthorizations(rows)
}

// ListAuthorizationsByUser returns every grant owned by userID, newest first.
func (db *DB) ListAuthorizationsByUser(ctx context.Context, userID string) ([]*Authorization, error) {
	rows, err := db.conn.QueryContext(ctx, selectAuthorizations+`
		WHERE a.user_id = ?
	`+orderAuthorizations, userID)
	if err != nil {
		return nil, err
	}
	return collectAuthorizations(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorization(row scanner) (*Authorization, error) {
	a := &Authorization{}
	var userID sql.NullString
	var createdMs, untilMs int64
	if err := row.Scan(&a.ID, &userID, &a.Username, &a.MACAddress, &createdMs, &untilMs); err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = &userID.String
	}
	a.CreatedAt = fromMillis(createdMs)
	a.AuthorizedUntil = fromMillis(untilMs)
	return a, nil
}

func collectAuthorizations(rows *sql.Rows) ([]*Authorization, error) {
	defer rows.Close()

	authorizations := []*Authorization{}
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		authorizations = append(authorizations, a)
	}
	return authorizations, rows.Err()
}

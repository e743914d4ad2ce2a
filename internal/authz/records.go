package authz

import (
	"context"
	"time"

	"github.com/airfi/airfi-portal/internal/db"
)

// RecordView is an authorization with its display-only relative times.
type RecordView struct {
	ID                      string    `json:"id"`
	Username                string    `json:"username,omitempty"`
	Guest                   bool      `json:"guest"`
	MACAddress              string    `json:"mac_address"`
	CreatedAt               time.Time `json:"created_at"`
	AuthorizedUntil         time.Time `json:"authorized_until"`
	Active                  bool      `json:"active"`
	CreatedAgo              string    `json:"created_ago"`
	AuthorizedUntilRelative string    `json:"authorized_until_relative"`
}

// NewRecordView renders a relative to now.
func NewRecordView(a *db.Authorization, now time.Time) RecordView {
	return RecordView{
		ID:                      a.ID,
		Username:                a.Username,
		Guest:                   a.IsGuest(),
		MACAddress:              a.MACAddress,
		CreatedAt:               a.CreatedAt,
		AuthorizedUntil:         a.AuthorizedUntil,
		Active:                  a.IsActive(now),
		CreatedAgo:              a.CreatedAgo(now),
		AuthorizedUntilRelative: a.AuthorizedUntilRelative(now),
	}
}

// ListRecent returns the access log: every grant created within the
// retention window or expired less than a window ago, newest first.
func (e *Engine) ListRecent(ctx context.Context, user *db.User) ([]RecordView, error) {
	if user == nil || !user.IsActive {
		return nil, ErrNotAuthorized
	}

	now := e.now()
	records, err := e.store.ListAuthorizations(ctx, now.Add(-e.settings.Retention))
	if err != nil {
		return nil, err
	}
	return views(records, now), nil
}

// ListForUser returns the full grant history of user, newest first.
func (e *Engine) ListForUser(ctx context.Context, user *db.User) ([]RecordView, error) {
	if user == nil || !user.IsActive {
		return nil, ErrNotAuthorized
	}

	records, err := e.store.ListAuthorizationsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return views(records, e.now()), nil
}

func views(records []*db.Authorization, now time.Time) []RecordView {
	out := make([]RecordView, 0, len(records))
	for _, a := range records {
		out = append(out, NewRecordView(a, now))
	}
	return out
}

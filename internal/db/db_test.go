package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB returns a fresh database in the test's temp directory. It is
// closed automatically when the test finishes.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func insert(t *testing.T, database *DB, userID *string, mac string, created, until time.Time) *Authorization {
	t.Helper()

	a := &Authorization{
		UserID:          userID,
		MACAddress:      mac,
		CreatedAt:       created,
		AuthorizedUntil: until,
	}
	require.NoError(t, database.CreateAuthorization(context.Background(), a))
	require.NotEmpty(t, a.ID)
	return a
}

func TestCreateAndGetAuthorization(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	user, err := database.CreateUser(ctx, "alice", "hunter2", false)
	require.NoError(t, err)

	created := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	until := created.Add(262800 * time.Minute)
	a := insert(t, database, &user.ID, "aa:bb:cc:dd:ee:ff", created, until)

	got, err := database.GetAuthorization(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user.ID, *got.UserID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", got.MACAddress)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.AuthorizedUntil.Equal(until))
	assert.Equal(t, 262800*time.Minute, got.AuthorizedUntil.Sub(got.CreatedAt))
	assert.False(t, got.IsGuest())
	assert.Equal(t, "Authorization for alice aa:bb:cc:dd:ee:ff", got.String())
}

func TestGetAuthorizationNotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := database.GetAuthorization(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGuestAuthorization(t *testing.T) {
	database := openTestDB(t)
	now := time.Now().UTC()

	a := insert(t, database, nil, "11:22:33:44:55:66", now, now.Add(24*time.Hour))

	got, err := database.GetAuthorization(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
	assert.Empty(t, got.Username)
	assert.True(t, got.IsGuest())
	assert.Equal(t, "Guest authorization for 11:22:33:44:55:66", got.String())
}

func TestOverlappingAuthorizationsForSameMAC(t *testing.T) {
	database := openTestDB(t)
	now := time.Now().UTC()

	insert(t, database, nil, "11:22:33:44:55:66", now, now.Add(time.Hour))
	insert(t, database, nil, "11:22:33:44:55:66", now, now.Add(time.Hour))

	list, err := database.ListAuthorizations(context.Background(), now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListAuthorizationsRetentionWindow(t *testing.T) {
	database := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	cutoff := now.Add(-7 * day)

	longExpired := insert(t, database, nil, "00:00:00:00:00:01", now.Add(-10*day), now.Add(-8*day))
	recentlyExpired := insert(t, database, nil, "00:00:00:00:00:02", now.Add(-10*day), now.Add(-time.Hour))
	recentlyCreated := insert(t, database, nil, "00:00:00:00:00:03", now.Add(-time.Hour), now.Add(-30*time.Minute))
	active := insert(t, database, nil, "00:00:00:00:00:04", now.Add(-30*day), now.Add(30*day))

	list, err := database.ListAuthorizations(context.Background(), cutoff)
	require.NoError(t, err)

	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.NotContains(t, ids, longExpired.ID)
	assert.Contains(t, ids, recentlyExpired.ID)
	assert.Contains(t, ids, recentlyCreated.ID)
	assert.Contains(t, ids, active.ID)
}

func TestListAuthorizationsOrdering(t *testing.T) {
	database := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := insert(t, database, nil, "00:00:00:00:00:01", now.Add(-2*time.Hour), now.Add(time.Hour))
	sameShort := insert(t, database, nil, "00:00:00:00:00:02", now, now.Add(time.Hour))
	sameLong := insert(t, database, nil, "00:00:00:00:00:03", now, now.Add(48*time.Hour))

	list, err := database.ListAuthorizations(context.Background(), now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, sameLong.ID, list[0].ID)
	assert.Equal(t, sameShort.ID, list[1].ID)
	assert.Equal(t, older.ID, list[2].ID)
}

func TestListAuthorizationsByUser(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alice, err := database.CreateUser(ctx, "alice", "pw", false)
	require.NoError(t, err)
	bob, err := database.CreateUser(ctx, "bob", "pw", false)
	require.NoError(t, err)

	// Long expired records stay in the owner's history.
	ancient := insert(t, database, &alice.ID, "00:00:00:00:00:01", now.Add(-400*24*time.Hour), now.Add(-300*24*time.Hour))
	recent := insert(t, database, &alice.ID, "00:00:00:00:00:02", now, now.Add(time.Hour))
	insert(t, database, &bob.ID, "00:00:00:00:00:03", now, now.Add(time.Hour))
	insert(t, database, nil, "00:00:00:00:00:04", now, now.Add(time.Hour))

	list, err := database.ListAuthorizationsByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)
	assert.Equal(t, ancient.ID, list[1].ID)

	none, err := database.ListAuthorizationsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteUserKeepsAuthorizations(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alice, err := database.CreateUser(ctx, "alice", "pw", false)
	require.NoError(t, err)
	a := insert(t, database, &alice.ID, "aa:bb:cc:dd:ee:ff", now, now.Add(time.Hour))

	require.NoError(t, database.DeleteUser(ctx, alice.ID))

	got, err := database.GetAuthorization(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)

	_, err = database.GetUser(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, database.DeleteUser(ctx, alice.ID), ErrNotFound)
}

func TestRelativeTimes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Authorization{
		CreatedAt:       now.Add(-3 * time.Hour),
		AuthorizedUntil: now.Add(2 * 24 * time.Hour),
	}

	assert.Equal(t, "3 hours ago", a.CreatedAgo(now))
	assert.Equal(t, "2 days from now", a.AuthorizedUntilRelative(now))
	assert.True(t, a.IsActive(now))
	assert.False(t, a.IsActive(now.Add(3*24*time.Hour)))
}

// Package authz grants network access to devices: it validates the
// request, records the grant and pushes it to the access controller.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/db"
	"github.com/airfi/airfi-portal/internal/guest"
	"github.com/airfi/airfi-portal/internal/macaddr"
	"github.com/airfi/airfi-portal/internal/metrics"
	"github.com/airfi/airfi-portal/internal/router"
)

// Identity paths, also used as metric labels.
const (
	PathAuthenticated = "authenticated"
	PathGuest         = "guest"
)

// Store persists authorizations. *db.DB implements it.
type Store interface {
	CreateAuthorization(ctx context.Context, a *db.Authorization) error
	ListAuthorizations(ctx context.Context, cutoff time.Time) ([]*db.Authorization, error)
	ListAuthorizationsByUser(ctx context.Context, userID string) ([]*db.Authorization, error)
}

// Settings are the grant durations and destinations.
type Settings struct {
	AuthenticatedMinutes         int
	GuestMinutes                 int
	Retention                    time.Duration
	AuthenticatedSuccessRedirect string
	GuestSuccessRedirect         string
}

// Config wires an Engine.
type Config struct {
	Store     Store
	Router    router.Router
	Passwords *guest.Generator
	Settings  Settings
	Logger    *zap.Logger
	Now       func() time.Time // nil = time.Now
}

// Engine runs the authenticated and guest authorization paths.
type Engine struct {
	store     Store
	router    router.Router
	passwords *guest.Generator
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

// Result describes a committed authorization and where to send the device.
type Result struct {
	Authorization *db.Authorization
	RedirectURL   string
	Message       string
}

// NewEngine creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("authz: store is required")
	}
	if cfg.Passwords == nil {
		return nil, fmt.Errorf("authz: guest password generator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Router == nil {
		cfg.Router = router.NewNoopRouter(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		store:     cfg.Store,
		router:    cfg.Router,
		passwords: cfg.Passwords,
		settings:  cfg.Settings,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// AuthorizeUser grants rawMAC network access on behalf of an active user
// for the configured authenticated duration.
func (e *Engine) AuthorizeUser(ctx context.Context, user *db.User, rawMAC string) (*Result, error) {
	if user == nil || !user.IsActive {
		metrics.RecordAuthorization(PathAuthenticated, "not_authorized")
		return nil, ErrNotAuthorized
	}

	mac, err := macaddr.Canonical(rawMAC)
	if err != nil {
		metrics.RecordAuthorization(PathAuthenticated, "invalid_mac")
		return nil, &InvalidMacError{MAC: rawMAC}
	}

	userID := user.ID
	a, err := e.grant(ctx, PathAuthenticated, &userID, user.Username, mac, e.settings.AuthenticatedMinutes)
	result := &Result{
		Authorization: a,
		RedirectURL:   e.settings.AuthenticatedSuccessRedirect,
		Message:       "Device registered",
	}
	return resultOrErr(result, err)
}

// AuthorizeGuest grants rawMAC network access when password matches
// today's guest password.
func (e *Engine) AuthorizeGuest(ctx context.Context, rawMAC, password string) (*Result, error) {
	if !e.passwords.Check(password) {
		metrics.RecordAuthorization(PathGuest, "incorrect_password")
		e.logger.Info("incorrect guest password", zap.String("mac", rawMAC))
		return nil, &IncorrectGuestPasswordError{MAC: rawMAC, RetryURL: RetryURL(rawMAC)}
	}

	mac, err := macaddr.Canonical(rawMAC)
	if err != nil {
		metrics.RecordAuthorization(PathGuest, "invalid_mac")
		return nil, &InvalidMacError{MAC: rawMAC}
	}

	a, err := e.grant(ctx, PathGuest, nil, "", mac, e.settings.GuestMinutes)
	result := &Result{
		Authorization: a,
		RedirectURL:   e.settings.GuestSuccessRedirect,
		Message:       "Guest access granted",
	}
	return resultOrErr(result, err)
}

// grant commits the record and then pushes it. A push failure is returned
// as *PushError alongside the committed record.
func (e *Engine) grant(ctx context.Context, path string, userID *string, username, mac string, minutes int) (*db.Authorization, error) {
	now := e.now().UTC().Truncate(time.Millisecond)
	a := &db.Authorization{
		UserID:          userID,
		Username:        username,
		MACAddress:      mac,
		CreatedAt:       now,
		AuthorizedUntil: now.Add(time.Duration(minutes) * time.Minute),
	}

	if err := e.store.CreateAuthorization(ctx, a); err != nil {
		metrics.RecordAuthorization(path, "store_error")
		e.logger.Error("failed to record authorization",
			zap.String("path", path),
			zap.String("mac", mac),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record authorization: %w", err)
	}

	metrics.RecordAuthorization(path, "granted")
	e.logger.Info("authorization recorded",
		zap.String("id", a.ID),
		zap.String("path", path),
		zap.String("mac", mac),
		zap.String("user", username),
		zap.Time("authorized_until", a.AuthorizedUntil),
	)

	if err := e.router.AuthorizeMAC(ctx, mac, minutes); err != nil {
		metrics.RecordControllerPush("failed")
		e.logger.Error("controller push failed, authorization stands",
			zap.String("id", a.ID),
			zap.String("mac", mac),
			zap.Error(err),
		)
		return a, &PushError{AuthorizationID: a.ID, Err: err}
	}

	metrics.RecordControllerPush("ok")
	return a, nil
}

func resultOrErr(result *Result, err error) (*Result, error) {
	if err == nil {
		return result, nil
	}
	var pushErr *PushError
	if errors.As(err, &pushErr) {
		return result, err
	}
	return nil, err
}

// GuestPassword returns today's guest password to an active user, along
// with the calendar day it belongs to.
func (e *Engine) GuestPassword(user *db.User) (password, day string, err error) {
	if user == nil || !user.IsActive {
		return "", "", ErrNotAuthorized
	}
	day = e.passwords.Today()
	return e.passwords.Current(), day, nil
}

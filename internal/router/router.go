// Package router pushes device authorizations to the network access
// controller that enforces them.
package router

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrControllerUnconfigured marks a controller with no connection settings.
// It is informational: pushes to an unconfigured controller succeed as no-ops.
var ErrControllerUnconfigured = errors.New("controller not configured")

// Router defines the interface for WiFi access control.
type Router interface {
	// AuthorizeMAC lets a canonical MAC address onto the network for minutes.
	AuthorizeMAC(ctx context.Context, macAddress string, minutes int) error

	// TestConnection checks that the controller accepts our credentials.
	TestConnection(ctx context.Context) error
}

// NoopRouter is used when no controller is configured. Authorizations are
// recorded locally but never pushed.
type NoopRouter struct {
	logger *zap.Logger
}

// NewNoopRouter creates a router that only logs.
func NewNoopRouter(logger *zap.Logger) *NoopRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopRouter{logger: logger}
}

// AuthorizeMAC logs and succeeds.
func (r *NoopRouter) AuthorizeMAC(ctx context.Context, macAddress string, minutes int) error {
	r.logger.Info("controller API has not been configured, skipping push",
		zap.String("mac", macAddress),
		zap.Int("minutes", minutes),
	)
	return nil
}

// TestConnection reports ErrControllerUnconfigured.
func (r *NoopRouter) TestConnection(ctx context.Context) error {
	return ErrControllerUnconfigured
}

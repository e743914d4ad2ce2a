// Package api serves the portal's HTTP surface: the captive landing page,
// the guest form and the operator views.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/auth"
	"github.com/airfi/airfi-portal/internal/authz"
	"github.com/airfi/airfi-portal/internal/db"
	"github.com/airfi/airfi-portal/internal/gate"
)

// SessionCookie carries the operator session token.
const SessionCookie = "airfi_session"

// IncorrectPasswordCode is appended to the retry URL after a failed guest
// challenge.
const IncorrectPasswordCode = "incorrect_guest_password"

// UserStore looks up operator accounts. *db.DB implements it.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	Authenticate(ctx context.Context, username, password string) (*db.User, error)
	Ping(ctx context.Context) error
}

// Settings configures the handler.
type Settings struct {
	Gate            gate.Settings
	SessionDuration time.Duration
	SecureCookies   bool
}

// Handler contains all HTTP handlers for the portal.
type Handler struct {
	engine     *authz.Engine
	users      UserStore
	jwtService *auth.JWTService
	settings   Settings
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	engine *authz.Engine,
	users UserStore,
	jwtService *auth.JWTService,
	settings Settings,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Gate.HomePath == "" {
		settings.Gate.HomePath = "/ui/"
	}

	return &Handler{
		engine:     engine,
		users:      users,
		jwtService: jwtService,
		settings:   settings,
		logger:     logger,
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code, database := "healthy", http.StatusOK, "ok"
	if err := h.users.Ping(ctx); err != nil {
		h.logger.Warn("database ping failed", zap.Error(err))
		status, code, database = "unhealthy", http.StatusServiceUnavailable, "unreachable"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  database,
	})
}

// Landing handles the captive-portal probe. The controller passes the
// device MAC in the id query parameter.
func (h *Handler) Landing(c *gin.Context) {
	user := currentUser(c)
	decision := gate.Decide(gate.Probe{
		MAC:           c.Query("id"),
		ClientIP:      c.RemoteIP(),
		Authenticated: user != nil,
	}, h.settings.Gate)

	h.logger.Debug("landing probe",
		zap.String("decision", decision.Kind.String()),
		zap.String("mac", decision.MAC),
		zap.String("client_ip", c.ClientIP()),
	)

	switch decision.Kind {
	case gate.PassThrough, gate.ExternalRedirect:
		c.Redirect(http.StatusFound, decision.RedirectURL)
	case gate.AuthorizeAuthenticated:
		result, err := h.engine.AuthorizeUser(c.Request.Context(), user, decision.MAC)
		h.respondAuthorization(c, result, err)
	case gate.GuestChallenge:
		data := gin.H{"title": "Guest access", "mac": decision.MAC}
		if c.Query("error") == IncorrectPasswordCode {
			data["error"] = "Incorrect guest password"
		}
		c.HTML(http.StatusOK, "landing.html", data)
	}
}

// AuthorizeGuest handles the guest password form.
func (h *Handler) AuthorizeGuest(c *gin.Context) {
	mac := strings.TrimSpace(c.PostForm("mac"))
	if mac == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mac is required"})
		return
	}

	result, err := h.engine.AuthorizeGuest(c.Request.Context(), mac, c.PostForm("guest_password"))
	h.respondAuthorization(c, result, err)
}

// respondAuthorization turns an engine outcome into a redirect or an error
// response for a device-facing request.
func (h *Handler) respondAuthorization(c *gin.Context, result *authz.Result, err error) {
	if err == nil {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}

	var (
		pwErr   *authz.IncorrectGuestPasswordError
		macErr  *authz.InvalidMacError
		pushErr *authz.PushError
	)
	switch {
	case errors.As(err, &pwErr):
		c.Redirect(http.StatusSeeOther, pwErr.RetryURL+"&error="+IncorrectPasswordCode)
	case errors.As(err, &macErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": macErr.Error()})
	case errors.Is(err, authz.ErrNotAuthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
	case errors.As(err, &pushErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":            "access controller did not accept the authorization",
			"authorization_id": pushErr.AuthorizationID,
			"detail":           pushErr.Err.Error(),
		})
	default:
		h.logger.Error("authorization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
	}
}

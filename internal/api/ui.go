package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/authz"
)

// Home lists the operator views.
func (h *Handler) Home(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"links": gin.H{
			"guest_password": "/ui/guest-password",
			"log":            "/ui/log",
			"netreg":         "/ui/netreg",
			"my_devices":     "/ui/my-devices",
		},
	})
}

// GuestPassword shows today's guest password.
func (h *Handler) GuestPassword(c *gin.Context) {
	password, day, err := h.engine.GuestPassword(currentUser(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guest_password": password,
		"date":           day,
	})
}

// Log lists recent authorizations.
func (h *Handler) Log(c *gin.Context) {
	records, err := h.engine.ListRecent(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorizations": records})
}

// MyDevices lists the signed-in operator's authorizations.
func (h *Handler) MyDevices(c *gin.Context) {
	records, err := h.engine.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorizations": records})
}

// NetregRequest registers a device by MAC address.
type NetregRequest struct {
	MACAddress string `form:"mac_address" json:"mac_address" binding:"required"`
}

// Netreg authorizes a device on behalf of the signed-in operator.
func (h *Handler) Netreg(c *gin.Context) {
	var req NetregRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.AuthorizeUser(c.Request.Context(), currentUser(c), req.MACAddress)

	var (
		macErr  *authz.InvalidMacError
		pushErr *authz.PushError
	)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{
			"message":       result.Message,
			"authorization": authz.NewRecordView(result.Authorization, time.Now()),
		})
	case errors.As(err, &macErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": macErr.Error()})
	case errors.Is(err, authz.ErrNotAuthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
	case errors.As(err, &pushErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":         "access controller did not accept the authorization",
			"detail":        pushErr.Err.Error(),
			"authorization": authz.NewRecordView(result.Authorization, time.Now()),
		})
	default:
		h.logger.Error("device registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device registration failed"})
	}
}

func (h *Handler) respondQueryError(c *gin.Context, err error) {
	if errors.Is(err, authz.ErrNotAuthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	h.logger.Error("failed to list authorizations", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list authorizations"})
}

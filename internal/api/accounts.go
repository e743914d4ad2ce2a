package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/db"
)

// LoginRequest is the operator sign-in form.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	// Next is set by the sign-in page; the browser is redirected there
	// instead of receiving JSON.
	Next string `form:"next" json:"next"`
}

// LoginPage serves the sign-in form.
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"title": "Staff sign in",
		"next":  safeNext(c.Query("next")),
	})
}

// Login authenticates an operator and issues a session token, both as a
// cookie and in the response body.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next := safeNext(req.Next)

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrInvalidCredentials) {
			h.logger.Info("failed sign in", zap.String("username", req.Username))
			if req.Next != "" {
				c.HTML(http.StatusUnauthorized, "login.html", gin.H{
					"title": "Staff sign in",
					"next":  next,
					"error": "Invalid username or password",
				})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		h.logger.Error("failed to authenticate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username, user.IsStaff, h.settings.SessionDuration)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(h.settings.SessionDuration.Seconds()), "/", "", h.settings.SecureCookies, true)

	if req.Next != "" {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"username":   user.Username,
		"expires_at": time.Now().Add(h.settings.SessionDuration).UTC().Format(time.RFC3339),
	})
}

// Logout clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", h.settings.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Profile returns the signed-in operator.
func (h *Handler) Profile(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"staff":      user.IsStaff,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// safeNext keeps post-login redirects on this site. Anything else goes to
// the operator home.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/ui/"
	}
	return next
}

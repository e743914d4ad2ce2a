package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/db"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
	userKey         = "user"
)

// RequestIDMiddleware tags each request with an ID, reusing one supplied by
// an upstream proxy.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// LoggingMiddleware logs request details.
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// AuthMiddleware returns a middleware that requires a valid operator
// session.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := sessionToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			c.Abort()
			return
		}

		user := h.userFromToken(c, tokenString)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the session if present but doesn't
// require it.
func (h *Handler) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := sessionToken(c); tokenString != "" {
			if user := h.userFromToken(c, tokenString); user != nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

// userFromToken returns the active user behind tokenString, or nil.
func (h *Handler) userFromToken(c *gin.Context, tokenString string) *db.User {
	claims, err := h.jwtService.ValidateToken(tokenString)
	if err != nil {
		return nil
	}

	user, err := h.users.GetUser(c.Request.Context(), claims.UserID())
	if err != nil {
		h.logger.Debug("session user lookup failed",
			zap.String("user_id", claims.UserID()),
			zap.Error(err),
		)
		return nil
	}
	if !user.IsActive {
		return nil
	}
	return user
}

// sessionToken extracts the token from "Bearer <token>" or the session
// cookie.
func sessionToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	token, err := c.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return token
}

func currentUser(c *gin.Context) *db.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*db.User); ok {
			return user
		}
	}
	return nil
}

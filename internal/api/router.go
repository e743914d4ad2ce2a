package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer // nil disables /metrics
	TrustedProxies []string
	Development    bool
}

// Router wraps the Gin engine with portal handlers.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter creates a new API router.
func NewRouter(handler *Handler, cfg RouterConfig) (*Router, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	engine.SetHTMLTemplate(tmpl)

	// Middleware
	engine.Use(gin.Recovery())
	engine.Use(RequestIDMiddleware())
	engine.Use(LoggingMiddleware(cfg.Logger))
	engine.Use(metrics.Middleware())

	r := &Router{
		engine:  engine,
		handler: handler,
	}

	r.setupRoutes(cfg.Gatherer)

	return r, nil
}

// setupRoutes configures all routes.
func (r *Router) setupRoutes(gatherer prometheus.Gatherer) {
	r.engine.GET("/health", r.handler.HealthCheck)
	if gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	// Device-facing captive portal
	portal := r.engine.Group("")
	portal.Use(r.handler.OptionalAuthMiddleware())
	{
		portal.GET("/", r.handler.Landing)
		portal.GET("/guest/s/default/", r.handler.Landing)
		portal.POST("/authorize_guest", r.handler.AuthorizeGuest)
	}

	accounts := r.engine.Group("/accounts")
	{
		accounts.GET("/login", r.handler.LoginPage)
		accounts.POST("/login", r.handler.Login)
		accounts.POST("/logout", r.handler.Logout)
		accounts.GET("/profile", r.handler.AuthMiddleware(), r.handler.Profile)
	}

	// Operator views (protected routes)
	ui := r.engine.Group("/ui")
	ui.Use(r.handler.AuthMiddleware())
	{
		ui.GET("/", r.handler.Home)
		ui.GET("/guest-password", r.handler.GuestPassword)
		ui.GET("/log", r.handler.Log)
		ui.POST("/netreg", r.handler.Netreg)
		ui.GET("/my-devices", r.handler.MyDevices)
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/api"
	"github.com/airfi/airfi-portal/internal/auth"
	"github.com/airfi/airfi-portal/internal/authz"
	"github.com/airfi/airfi-portal/internal/config"
	"github.com/airfi/airfi-portal/internal/db"
	"github.com/airfi/airfi-portal/internal/gate"
	"github.com/airfi/airfi-portal/internal/guest"
	"github.com/airfi/airfi-portal/internal/metrics"
	"github.com/airfi/airfi-portal/internal/router"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("listen", "", "listen address (default :8080)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	words, err := guest.LoadWordlist(cfg.WordlistPath)
	if err != nil {
		logger.Fatal("failed to load guest wordlist", zap.Error(err))
	}
	passwords, err := guest.NewGenerator(cfg.SecretKey, words, cfg.Location(), nil)
	if err != nil {
		logger.Fatal("failed to create guest password generator", zap.Error(err))
	}

	keyPair, err := auth.LoadOrGenerateKeyPair(cfg.KeysDir)
	if err != nil {
		logger.Fatal("failed to initialize session keys", zap.Error(err))
	}
	jwtService := auth.NewJWTService(keyPair, "airfi-portal")

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	controller, err := newController(cfg, logger.Named("controller"))
	if err != nil {
		logger.Fatal("failed to create controller client", zap.Error(err))
	}

	if cfg.Controller.Enabled() {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Controller.Timeout)
		if err := controller.TestConnection(checkCtx); err != nil {
			logger.Warn("controller connection test failed", zap.Error(err))
		} else {
			logger.Info("controller connected", zap.String("kind", cfg.Controller.Kind))
		}
		cancel()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Init(registry); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	engine, err := authz.NewEngine(authz.Config{
		Store:     database,
		Router:    controller,
		Passwords: passwords,
		Settings: authz.Settings{
			AuthenticatedMinutes:         cfg.AuthenticatedMinutes,
			GuestMinutes:                 cfg.GuestMinutes,
			Retention:                    cfg.Retention(),
			AuthenticatedSuccessRedirect: cfg.AuthenticatedSuccessRedirect,
			GuestSuccessRedirect:         cfg.GuestSuccessRedirect,
		},
		Logger: logger.Named("authz"),
	})
	if err != nil {
		logger.Fatal("failed to create authorization engine", zap.Error(err))
	}

	handler := api.NewHandler(engine, database, jwtService, api.Settings{
		Gate: gate.Settings{
			TrustedOperatorIP:     cfg.ReverseProxyIP,
			PortalTriggerRedirect: cfg.PortalTriggerRedirect,
		},
		SessionDuration: cfg.SessionDuration(),
	}, logger.Named("api"))

	httpRouter, err := api.NewRouter(handler, api.RouterConfig{
		Logger:         logger.Named("http"),
		Gatherer:       registry,
		TrustedProxies: cfg.TrustedProxies,
		Development:    cfg.Development,
	})
	if err != nil {
		logger.Fatal("failed to create HTTP router", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("portal starting",
		zap.String("addr", cfg.ListenAddr),
		zap.String("database", cfg.DatabasePath),
		zap.String("controller", controllerName(cfg)),
		zap.Int("authenticated_minutes", cfg.AuthenticatedMinutes),
		zap.Int("guest_minutes", cfg.GuestMinutes),
	)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newController picks the push backend. Without connection settings grants
// are recorded locally only.
func newController(cfg *config.Config, logger *zap.Logger) (router.Router, error) {
	c := cfg.Controller
	if !c.Enabled() {
		return router.NewNoopRouter(logger), nil
	}

	switch c.Kind {
	case config.ControllerOpenNDS:
		var privateKey string
		if c.SSHPrivateKey != "" {
			pem, err := os.ReadFile(c.SSHPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read SSH private key: %w", err)
			}
			privateKey = string(pem)
		}
		return router.NewOpenWrtClient(router.OpenWrtConfig{
			Address:    c.URL,
			Port:       c.SSHPort,
			Username:   c.Username,
			Password:   c.Password,
			PrivateKey: privateKey,
			Timeout:    c.Timeout,
		}, logger)
	default:
		return router.NewUniFiClient(router.UniFiConfig{
			URL:                c.URL,
			Site:               c.Site,
			Username:           c.Username,
			Password:           c.Password,
			InsecureSkipVerify: c.InsecureSkipVerify,
			Timeout:            c.Timeout,
		}, logger)
	}
}

func controllerName(cfg *config.Config) string {
	if !cfg.Controller.Enabled() {
		return "none"
	}
	return cfg.Controller.Kind
}

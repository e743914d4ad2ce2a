// Command airfi-portal runs the captive portal and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/config"
)

// app carries what every subcommand needs once the root command has loaded
// the configuration.
type app struct {
	configFile string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "airfi-portal",
		Short:         "Captive portal that authorizes devices on a Wi-Fi network",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default ./airfi.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("database", "", "path to the SQLite database")

	root.AddCommand(
		newServeCommand(a),
		newGuestPasswordCommand(a),
		newCreateUserCommand(a),
		newDeleteUserCommand(a),
		newSetActiveCommand(a, false),
		newSetActiveCommand(a, true),
		newKeygenCommand(a),
		newCheckControllerCommand(a),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	v := config.NewViper(a.configFile)
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		"log_level":     "log-level",
		"database_path": "database",
		"listen_addr":   "listen",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/airfi/airfi-portal/internal/auth"
	"github.com/airfi/airfi-portal/internal/guest"
	"github.com/airfi/airfi-portal/internal/router"
)

func newGuestPasswordCommand(a *app) *cobra.Command {
	var (
		date string
		qr   bool
	)

	cmd := &cobra.Command{
		Use:   "guest-password",
		Short: "Print the guest password for today or a given date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := guest.LoadWordlist(a.cfg.WordlistPath)
			if err != nil {
				return err
			}
			passwords, err := guest.NewGenerator(a.cfg.SecretKey, words, a.cfg.Location(), nil)
			if err != nil {
				return err
			}

			password := passwords.Current()
			if date != "" {
				day, err := time.ParseInLocation(time.DateOnly, date, a.cfg.Location())
				if err != nil {
					return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
				}
				password = passwords.ForDate(day)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, password)
			if qr {
				qrterminal.GenerateHalfBlock(password, qrterminal.L, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "calendar day as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&qr, "qr", false, "also print the password as a QR code")
	return cmd
}

func newKeygenCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the key pair that signs operator sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.KeysDir
			existing := filepath.Join(dir, auth.PrivateKeyFile)
			if _, err := os.Stat(existing); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", existing)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			keyPair, err := auth.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := keyPair.Save(dir); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s to %s\n", auth.PrivateKeyFile, auth.PublicKeyFile, dir)
			fmt.Fprintln(cmd.OutOrStdout(), "Existing operator sessions are now invalid.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key pair")
	return cmd
}

func newCheckControllerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-controller",
		Short: "Log in to the access controller and out again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := newController(a.cfg, a.logger.Named("controller"))
			if err != nil {
				return err
			}

			err = controller.TestConnection(cmd.Context())
			switch {
			case errors.Is(err, router.ErrControllerUnconfigured):
				fmt.Fprintln(cmd.OutOrStdout(), "No controller configured; authorizations are recorded but not pushed.")
				return nil
			case err != nil:
				return fmt.Errorf("controller check failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Controller %s at %s accepted our credentials.\n", a.cfg.Controller.Kind, a.cfg.Controller.URL)
			return nil
		},
	}
}

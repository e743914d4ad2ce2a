package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airfi/airfi-portal/internal/db"
)

func newCreateUserCommand(a *app) *cobra.Command {
	var (
		password string
		staff    bool
	)

	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			database, err := db.Open(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := database.CreateUser(cmd.Context(), args[0], password, staff)
			if err != nil {
				return err
			}

			a.logger.Info("user created", zap.String("username", user.Username), zap.Bool("staff", user.IsStaff))
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	cmd.Flags().BoolVar(&staff, "staff", false, "grant staff rights")
	return cmd
}

func newDeleteUserCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <username>",
		Short: "Delete an operator account; its authorizations are kept without an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := database.GetUserByUsername(cmd.Context(), args[0])
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("no user named %q", args[0])
			}
			if err != nil {
				return err
			}

			if err := database.DeleteUser(cmd.Context(), user.ID); err != nil {
				return err
			}

			a.logger.Info("user deleted", zap.String("username", user.Username))
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", user.Username)
			return nil
		},
	}
}

// newSetActiveCommand builds activate-user and deactivate-user. A
// deactivated operator keeps their history but can no longer sign in,
// register devices or read the log.
func newSetActiveCommand(a *app, active bool) *cobra.Command {
	use, short, verb := "deactivate-user", "Disable an operator account without deleting it", "Deactivated"
	if active {
		use, short, verb = "activate-user", "Re-enable a deactivated operator account", "Activated"
	}

	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(a.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := database.GetUserByUsername(cmd.Context(), args[0])
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("no user named %q", args[0])
			}
			if err != nil {
				return err
			}

			if err := database.SetUserActive(cmd.Context(), user.ID, active); err != nil {
				return err
			}

			a.logger.Info("user active flag changed", zap.String("username", user.Username), zap.Bool("active", active))
			fmt.Fprintf(cmd.OutOrStdout(), "%s user %s\n", verb, user.Username)
			return nil
		},
	}
}

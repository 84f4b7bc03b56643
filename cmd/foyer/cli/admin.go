package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foyerhq/foyer/internal/config"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin credential",
		Long:  "Set or reset the admin password used to log in to the dashboard API.",
	}

	cmd.AddCommand(newAdminSetPasswordCmd())

	return cmd
}

// ---------- admin set-password ----------

func newAdminSetPasswordCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Set the admin password",
		Long: `Set the admin password directly in the store. This overwrites any
existing credential, so it also works as a reset when the password is lost.
Existing admin sessions stay valid until they expire.`,
		Example: `  foyer admin set-password                  # prompts twice
  foyer admin set-password --password secret  # non-interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminSetPassword(password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")

	return cmd
}

func runAdminSetPassword(password string) error {
	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	if err := store.SetAdminPasswordHash(context.Background(), config.HashSecret(password)); err != nil {
		return fmt.Errorf("set admin password: %w", err)
	}

	fmt.Println("Admin password updated.")
	return nil
}

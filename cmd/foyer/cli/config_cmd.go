package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foyerhq/foyer/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Foyer configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default foyer.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	path := "foyer.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Point sfu.url at your media server and set its key pair, then run 'foyer serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	// Ensure config is loaded
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	// Print all settings
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'foyer config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}

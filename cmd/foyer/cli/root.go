package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by version helpers
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foyer",
		Short: "Meeting control plane for a media server",
		Long: `Foyer: the meeting control plane in front of your media server.

Foyer issues join tokens for video rooms, runs the admin dashboard API,
and delivers signed webhooks when rooms and participants come and go.
The media server does the media; Foyer does everything around it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./foyer.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: in-memory)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newWebhookCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("foyer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.foyer")
	}

	viper.SetEnvPrefix("FOYER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}

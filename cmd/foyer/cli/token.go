package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foyerhq/foyer/internal/sfu"
)

func newTokenCmd() *cobra.Command {
	var (
		room     string
		identity string
		host     bool
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a join token without the server",
		Long: `Mint a media server join token directly from the configured key pair.
Useful for smoke-testing a deployment or joining a room from scripts. The
room name is used exactly as given; the API's sanitizer does not apply.`,
		Example: `  foyer token --room standup --identity alice
  foyer token --room standup --identity ops --host --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(room, identity, host, ttl)
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "Room name (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "Participant identity (required)")
	cmd.Flags().BoolVar(&host, "host", false, "Grant room admin capabilities")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default 6h)")
	cmd.MarkFlagRequired("room")
	cmd.MarkFlagRequired("identity")

	return cmd
}

func runToken(room, identity string, host bool, ttl time.Duration) error {
	cfg := loadYAMLConfig()
	if v := os.ExpandEnv(viper.GetString("sfu.api_key")); v != "" {
		cfg.SFU.APIKey = v
	}
	if v := os.ExpandEnv(viper.GetString("sfu.api_secret")); v != "" {
		cfg.SFU.APISecret = v
	}
	if cfg.SFU.APIKey == "" || cfg.SFU.APISecret == "" {
		return fmt.Errorf("no media server credentials configured (set sfu.api_key and sfu.api_secret)")
	}

	at := sfu.NewAccessToken(cfg.SFU.APIKey, cfg.SFU.APISecret).
		SetIdentity(identity).
		SetVideoGrant(sfu.VideoGrant{
			Room:      room,
			RoomJoin:  true,
			RoomAdmin: host,
		})
	if ttl > 0 {
		at.SetValidFor(ttl)
	}

	token, err := at.ToJWT()
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys used to authenticate against the Foyer admin API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		permissions []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  foyer key create --name "CI pipeline" --permissions read,write
  foyer key create --name automation --permissions admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, permissions)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringSliceVar(&permissions, "permissions", []string{"read"}, "Permissions: read, write, admin")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name string, permissions []string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	authSvc := service.NewAuthService(store)
	key, plaintext, err := authSvc.CreateAPIKey(context.Background(), name, permissions)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:         %s\n", plaintext)
	fmt.Printf("  Name:        %s\n", key.Name)
	fmt.Printf("  Permissions: %s\n", strings.Join(key.Permissions, ", "))
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		ID          string `json:"id"`
		Mask        string `json:"key_mask"`
		Name        string `json:"name"`
		Permissions string `json:"permissions"`
		LastUsed    string `json:"last_used"`
	}

	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		rows[i] = keyRow{
			ID:          k.ID,
			Mask:        k.KeyMask,
			Name:        k.Name,
			Permissions: strings.Join(k.Permissions, ","),
			LastUsed:    lastUsed,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys configured. Use 'foyer key create' to create one.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-24s %-18s %-16s\n", "ID", "KEY", "NAME", "PERMISSIONS", "LAST USED")
	fmt.Printf("%-38s %-20s %-24s %-18s %-16s\n", "--", "---", "----", "-----------", "---------")
	for _, k := range rows {
		fmt.Printf("%-38s %-20s %-24s %-18s %-16s\n", k.ID, k.Mask, k.Name, k.Permissions, k.LastUsed)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id-or-mask>",
		Short: "Revoke an API key by ID or mask prefix",
		Long:  "Delete an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(ref string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	// Match by exact ID first, then by mask prefix.
	var matched *model.APIKey
	for i := range keys {
		if keys[i].ID == ref {
			matched = &keys[i]
			break
		}
	}
	if matched == nil {
		for i := range keys {
			if strings.HasPrefix(keys[i].KeyMask, ref) {
				matched = &keys[i]
				break
			}
		}
	}
	if matched == nil {
		return fmt.Errorf("no API key found matching %q", ref)
	}

	if err := store.DeleteAPIKey(ctx, matched.ID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %s (%s)\n", matched.KeyMask, matched.Name)
	return nil
}

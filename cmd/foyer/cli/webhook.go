package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "webhook",
		Aliases: []string{"webhooks"},
		Short:   "Inspect webhook subscriptions",
		Long:    "List the webhook subscriptions configured through the admin API.",
	}

	cmd.AddCommand(newWebhookListCmd())

	return cmd
}

// ---------- webhook list ----------

func newWebhookListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all webhook subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhookList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runWebhookList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	hooks, err := store.ListWebhooks(context.Background())
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}

	type hookRow struct {
		Name          string `json:"name"`
		URL           string `json:"url"`
		Events        string `json:"events"`
		Enabled       bool   `json:"enabled"`
		Failures      int    `json:"failure_count"`
		LastTriggered string `json:"last_triggered"`
	}

	rows := make([]hookRow, len(hooks))
	for i, h := range hooks {
		last := "never"
		if h.LastTriggeredAt != nil {
			last = h.LastTriggeredAt.Format("2006-01-02 15:04")
		}
		rows[i] = hookRow{
			Name:          h.Name,
			URL:           h.URL,
			Events:        strings.Join(h.Events, ","),
			Enabled:       h.Enabled,
			Failures:      h.FailureCount,
			LastTriggered: last,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No webhooks configured. Create one through the admin API.")
		return nil
	}

	fmt.Printf("%-20s %-40s %-36s %-8s %-8s %-16s\n", "NAME", "URL", "EVENTS", "ENABLED", "FAILS", "LAST TRIGGERED")
	fmt.Printf("%-20s %-40s %-36s %-8s %-8s %-16s\n", "----", "---", "------", "-------", "-----", "--------------")
	for _, h := range rows {
		enabled := "yes"
		if !h.Enabled {
			enabled = "no"
		}
		fmt.Printf("%-20s %-40s %-36s %-8s %-8d %-16s\n", h.Name, h.URL, h.Events, enabled, h.Failures, h.LastTriggered)
	}

	return nil
}

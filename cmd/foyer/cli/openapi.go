package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foyerhq/foyer/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  "Generate the OpenAPI 3.1 specification for the Foyer HTTP API, the same document the server exposes at /openapi.json.",
		Example: `  foyer openapi                 # print to stdout
  foyer openapi -o foyer.json   # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(outputFile string) error {
	doc := openapi.Generate()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return fmt.Errorf("write spec: %w", err)
		}
		fmt.Printf("Wrote OpenAPI spec to %s\n", outputFile)
		return nil
	}

	fmt.Println(string(data))
	return nil
}

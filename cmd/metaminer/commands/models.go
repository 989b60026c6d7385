package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/travis4dams/metaminer/pkg/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the configured provider",
	Long: `List the models offered by the configured provider.

Examples:
  metaminer models
  metaminer models --provider openai --json
  metaminer models --base-url http://localhost:8080/v1`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := llm.NewProvider(cfg.Provider, cfg.ProviderConfig())
	if err != nil {
		return err
	}
	lister, ok := llm.AsModelLister(p)
	if !ok {
		return fmt.Errorf("provider %s cannot list models", p.Name())
	}
	models, err := lister.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if models == nil {
			models = []llm.ModelInfo{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}
	for _, m := range models {
		if m.Name != "" && m.Name != m.ID {
			fmt.Fprintf(out, "%s\t%s\n", m.ID, m.Name)
			continue
		}
		fmt.Fprintln(out, m.ID)
	}
	return nil
}

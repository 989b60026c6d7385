package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/travis4dams/metaminer/pkg/inference"
	"github.com/travis4dams/metaminer/pkg/metaminer"
	"github.com/travis4dams/metaminer/pkg/question"
)

var inferCmd = &cobra.Command{
	Use:   "infer <questions-file>",
	Short: "Suggest types for questions that do not declare one",
	Long: `Ask the model for a type for every question without a declared type
and print the suggestions as YAML. Nothing is extracted.

Examples:
  metaminer infer questions.txt
  metaminer infer questions.csv --model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)
}

func runInfer(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("questions file not found: %s", args[0])
	}
	set, err := question.LoadFile(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inq, err := metaminer.New(cmd.Context(), set, *cfg, metaminer.WithLogger(newLogger(cmd, cfg)))
	if err != nil {
		return err
	}
	suggestions := inq.InferTypes(cmd.Context())
	if len(suggestions) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "All questions declare a type")
		return nil
	}

	b, err := suggestionsYAML(set.Names(), suggestions)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

// suggestionsYAML renders suggestions in question order.
func suggestionsYAML(names []string, suggestions map[string]inference.Suggestion) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range names {
		s, ok := suggestions[name]
		if !ok {
			continue
		}
		source := "model"
		if s.Heuristic {
			source = "heuristic"
		}
		alts := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, a := range s.Alternatives {
			alts.Content = append(alts.Content, strNode(a.String()))
		}
		entry := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			strNode("type"), strNode(s.Type.String()),
			strNode("reasoning"), strNode(s.Reasoning),
			strNode("alternatives"), alts,
			strNode("source"), strNode(source),
		}}
		root.Content = append(root.Content, strNode(name), entry)
	}
	return yaml.Marshal(root)
}

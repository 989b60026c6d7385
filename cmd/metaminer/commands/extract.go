package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/travis4dams/metaminer/internal/output"
	"github.com/travis4dams/metaminer/pkg/metaminer"
	"github.com/travis4dams/metaminer/pkg/question"
)

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	showQuestions, _ := flags.GetBool("show-questions")
	if !showQuestions && len(args) != 2 {
		return fmt.Errorf("requires a questions file and a documents path")
	}

	questionsFile := args[0]
	if _, err := os.Stat(questionsFile); err != nil {
		return fmt.Errorf("questions file not found: %s", questionsFile)
	}

	logInfo(cmd, "Loading questions from: %s", questionsFile)
	set, err := question.LoadFile(questionsFile)
	if err != nil {
		return err
	}
	if showQuestions {
		b, err := questionsYAML(set)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}

	documents := args[1]
	if _, err := os.Stat(documents); err != nil {
		return fmt.Errorf("documents path not found: %s", documents)
	}

	outputPath, _ := flags.GetString("output")
	formatName, _ := flags.GetString("format")
	format, err := resolveFormat(formatName, flags.Changed("format"), outputPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	opts := []metaminer.Option{metaminer.WithLogger(log)}
	quiet, _ := flags.GetBool("quiet")
	var bar *progress
	if cfg.Progress && !quiet {
		bar = &progress{w: cmd.ErrOrStderr()}
		opts = append(opts, metaminer.WithProgress(bar.update))
	}

	inq, err := metaminer.New(ctx, set, *cfg, opts...)
	if err != nil {
		return err
	}
	logInfo(cmd, "Processing documents from: %s", documents)
	logInfo(cmd, "Questions loaded: %d", set.Len())

	recs, err := inq.Process(ctx, documents)
	bar.finish()
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: No results generated")
		return nil
	}
	usage := inq.Usage()
	logInfo(cmd, "Processed %d documents (%d LLM calls, %d input / %d output tokens)",
		len(recs), usage.Calls, usage.InputTokens, usage.OutputTokens)

	var out io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	w, err := output.NewWriter(out, format, output.WithLogger(log))
	if err != nil {
		return err
	}
	if err := w.WriteAll(recs); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if outputPath != "" {
		logInfo(cmd, "Results saved to: %s", outputPath)
	}
	return nil
}

// resolveFormat picks the output format: an explicit --format wins, then the
// extension of the output file, then csv. xlsx needs a file.
func resolveFormat(name string, explicit bool, outputPath string) (output.Format, error) {
	format := output.FormatCSV
	if explicit {
		f, err := output.ParseFormat(name)
		if err != nil {
			return "", err
		}
		format = f
	} else if f, ok := output.FormatFromPath(outputPath); ok {
		format = f
	}
	if format == output.FormatXLSX && outputPath == "" {
		return "", errors.New("xlsx output requires --output")
	}
	return format, nil
}

// questionsYAML renders the set in the YAML question file format. Types that
// were not declared are marked with a comment.
func questionsYAML(set *question.Set) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, q := range set.Questions() {
		entry := &yaml.Node{Kind: yaml.MappingNode}
		add := func(key string, value *yaml.Node) {
			entry.Content = append(entry.Content, strNode(key), value)
		}
		add("question", strNode(q.Text))

		typ := strNode(q.Type.String())
		if !q.ExplicitType {
			typ.LineComment = "# not declared"
		}
		add("type", typ)
		add("output_name", strNode(q.OutputName))
		if q.HasDefault {
			var def yaml.Node
			if err := def.Encode(q.Default); err != nil {
				return nil, err
			}
			add("default", &def)
		}

		root.Content = append(root.Content, strNode(q.Key), entry)
	}
	return yaml.Marshal(root)
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// progress prints a single updating status line.
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	shown bool
}

func (p *progress) update(done, total int) {
	if total < 2 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = true
	fmt.Fprintf(p.w, "\rProcessing documents: %d/%d", done, total)
}

func (p *progress) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		fmt.Fprintln(p.w)
	}
}

// Package commands implements the CLI commands for metaminer.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/travis4dams/metaminer/internal/logger"
	"github.com/travis4dams/metaminer/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "metaminer <questions-file> <documents>",
	Short: "Extract structured information from documents using an LLM",
	Long: `Metaminer answers a fixed set of questions about every document it is
given and writes one row per document.

Questions come from a .txt file (one per line), a .csv file (question,
field_name, data_type and default columns) or a .yaml/.json mapping.
Documents may be a single file or a directory.

Examples:
  metaminer questions.txt documents/
  metaminer questions.csv document.pdf --output results.json
  metaminer questions.yaml documents/ --format jsonl --workers 5

  # Print the normalized questions and exit
  metaminer questions.csv --show-questions`,
	Args:          cobra.RangeArgs(1, 2),
	RunE:          runExtract,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Global flags
	pf.String("config", "", "config file (default $HOME/.metaminer.yaml)")
	pf.BoolP("verbose", "v", false, "enable verbose output")
	pf.Bool("debug", false, "enable debug logging")
	pf.BoolP("quiet", "q", false, "only report errors")
	pf.Bool("log-json", false, "write logs as JSON")

	// LLM settings
	pf.String("provider", "compat", "LLM provider: compat, openai, anthropic")
	pf.String("base-url", "", "API base URL (default http://localhost:5001/api/v1 for compat)")
	pf.String("api-key", "", "API key (or set OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	pf.StringP("model", "m", "", "model name (default: first model listed by the server)")
	pf.Duration("timeout", 30*time.Second, "request timeout")
	pf.Int("max-retries", 3, "max retries for rate limits, timeouts and connection failures")

	_ = viper.BindPFlag("provider", pf.Lookup("provider"))
	_ = viper.BindPFlag("base_url", pf.Lookup("base-url"))
	_ = viper.BindPFlag("api_key", pf.Lookup("api-key"))
	_ = viper.BindPFlag("model", pf.Lookup("model"))
	_ = viper.BindPFlag("timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("max_retries", pf.Lookup("max-retries"))

	flags := rootCmd.Flags()

	// Output settings
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.StringP("format", "f", "csv", "output format: csv, json, jsonl, yaml, xlsx (default from --output extension)")
	flags.Bool("show-questions", false, "print the normalized questions as YAML and exit")

	// Processing settings
	flags.Int("workers", 3, "concurrent documents")
	flags.Int("rpm", 60, "max LLM requests per minute")
	flags.Int("batch-size", 100, "documents per batch")
	flags.String("max-file-size", "50MB", "largest document accepted (e.g. 10MB, 1GiB)")
	flags.Bool("no-infer", false, "do not infer types for questions without one")

	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("requests_per_minute", flags.Lookup("rpm"))
	_ = viper.BindPFlag("batch_size", flags.Lookup("batch-size"))
	_ = viper.BindPFlag("max_file_size", flags.Lookup("max-file-size"))
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		fmt.Fprintln(os.Stderr, "\noperation cancelled")
		return 1
	default:
		logError("%v", err)
		return 1
	}
}

// loadConfig reads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(viper.GetViper(), file)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("no-infer"); f != nil && f.Changed {
		noInfer, _ := cmd.Flags().GetBool("no-infer")
		cfg.InferTypes = !noInfer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger from the config and the logging flags.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	flags := cmd.Flags()
	debug, _ := flags.GetBool("debug")
	quiet, _ := flags.GetBool("quiet")
	verbose, _ := flags.GetBool("verbose")
	logJSON, _ := flags.GetBool("log-json")

	level := cfg.LogLevel
	if verbose && (level == "WARN" || level == "WARNING" || level == "ERROR" || level == "CRITICAL") {
		level = "INFO"
	}
	return logger.New(logger.Options{
		Level:  level,
		Debug:  debug,
		Quiet:  quiet,
		JSON:   logJSON || cfg.LogFormat == "json",
		Output: os.Stderr,
	})
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr when --verbose is set.
func logInfo(cmd *cobra.Command, format string, args ...any) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

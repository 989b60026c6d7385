// Package config loads metaminer settings from defaults, a YAML file and the
// environment, and validates them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/travis4dams/metaminer/pkg/document"
	"github.com/travis4dams/metaminer/pkg/llm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "METAMINER"

// Config holds every setting of a metaminer run.
type Config struct {
	// LLM endpoint
	Provider string        `mapstructure:"provider" yaml:"provider" validate:"required"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`

	// Retries
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay" validate:"gte=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=DEBUG INFO WARN WARNING ERROR CRITICAL"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=text json"`

	// Files
	MaxFileSize         string   `mapstructure:"max_file_size" yaml:"max_file_size" validate:"bytesize"`
	SupportedExtensions []string `mapstructure:"supported_extensions" yaml:"supported_extensions" validate:"min=1,dive,startswith=."`

	// Concurrency
	Workers           int  `mapstructure:"workers" yaml:"workers" validate:"gt=0"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gt=0"`
	BatchSize         int  `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
	Progress          bool `mapstructure:"progress" yaml:"progress"`

	// Extraction
	InferTypes       bool          `mapstructure:"infer_types" yaml:"infer_types"`
	Temperature      float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	StrictSchema     bool          `mapstructure:"strict_schema" yaml:"strict_schema"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold" validate:"gte=0"`
	SchemaCacheTTL   time.Duration `mapstructure:"schema_cache_ttl" yaml:"schema_cache_ttl" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:            "compat",
		BaseURL:             llm.DefaultCompatBaseURL,
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		RetryBaseDelay:      time.Second,
		LogLevel:            "INFO",
		LogFormat:           "text",
		MaxFileSize:         "50MB",
		SupportedExtensions: document.SupportedExtensions(),
		Workers:             3,
		RequestsPerMinute:   60,
		BatchSize:           100,
		Progress:            true,
		InferTypes:          true,
		Temperature:         0,
		MaxTokens:           llm.DefaultMaxTokens,
		BreakerThreshold:    0,
		SchemaCacheTTL:      30 * time.Minute,
	}
}

// SetDefaults registers the defaults on v. Every key must have a default for
// AutomaticEnv to pick it up during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_base_delay", d.RetryBaseDelay)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("supported_extensions", d.SupportedExtensions)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("requests_per_minute", d.RequestsPerMinute)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("infer_types", d.InferTypes)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("max_tokens", d.MaxTokens)
	v.SetDefault("strict_schema", d.StrictSchema)
	v.SetDefault("breaker_threshold", d.BreakerThreshold)
	v.SetDefault("schema_cache_ttl", d.SchemaCacheTTL)
}

// Load reads settings into a Config. Precedence, highest first: values set
// or flags bound on v, METAMINER_* environment variables, the config file,
// defaults. OPENAI_API_KEY is read when METAMINER_API_KEY is unset.
//
// An explicit file must exist. Without one, .metaminer.yaml is looked up in
// the working directory and the home directory; not finding it is fine.
// The result is not validated.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(".metaminer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return &cfg, nil
}

// Violation is one failed check.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + " " + v.Message
}

// ValidationError lists every violation found by Validate.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := humanize.ParseBytes(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks every field and returns a *ValidationError naming all
// violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	ve := &ValidationError{}
	for _, e := range fieldErrs {
		ve.Violations = append(ve.Violations, Violation{
			Field:   strings.TrimPrefix(e.Namespace(), "Config."),
			Message: formatValidationError(e),
		})
	}
	return ve
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", e.Param(), e.Value())
	case "lte":
		return fmt.Sprintf("must be at most %s, got %v", e.Param(), e.Value())
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(e.Param(), " ", ", "), e.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q, got %q", e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("must be a valid URL, got %q", e.Value())
	case "bytesize":
		return fmt.Sprintf("must be a byte size like \"50MB\", got %q", e.Value())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// MaxFileSizeBytes parses MaxFileSize.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max file size %q: %w", c.MaxFileSize, err)
	}
	return int64(n), nil
}

// ProviderConfig returns the settings passed to the LLM provider. When no
// API key is configured the provider's own environment variable is used.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	key := c.APIKey
	if key == "" {
		key = llm.EnvAPIKey(c.Provider)
	}
	return llm.ProviderConfig{
		APIKey:  key,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: c.Timeout,
	}
}

// DefaultFile returns the config path used when none is given.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metaminer.yaml"
	}
	return filepath.Join(home, ".metaminer.yaml")
}

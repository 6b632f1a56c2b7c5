// Package config loads service configuration from an optional config.yaml
// and DOCUFLOW_* environment variables.
package config

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docuflow/intake-service/internal/awsutil"
	"github.com/docuflow/intake-service/internal/usage"
)

// Provider names accepted in provider.extraction and provider.segmentation.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig    `yaml:"store" mapstructure:"store"`
	Provider  ProviderConfig `yaml:"provider" mapstructure:"provider"`
	OpenAI    OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	Gemini    KeyConfig      `yaml:"gemini" mapstructure:"gemini"`
	Anthropic KeyConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	Auth      AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Usage     UsageConfig    `yaml:"usage" mapstructure:"usage"`
	Archive   ArchiveConfig  `yaml:"archive" mapstructure:"archive"`
	Retry     RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Pricing   PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig   `yaml:"server" mapstructure:"server"`
	Log       LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	// DBSecretARN names an RDS-style secret (host, port, dbname, username,
	// password). Used when DatabaseURL is empty.
	DBSecretARN string `yaml:"db_secret_arn" mapstructure:"db_secret_arn"`
}

// ProviderConfig selects the vision provider and models for each path.
type ProviderConfig struct {
	Extraction            string `yaml:"extraction" mapstructure:"extraction"`
	Segmentation          string `yaml:"segmentation" mapstructure:"segmentation"`
	FastModel             string `yaml:"fast_model" mapstructure:"fast_model"`
	VisionModel           string `yaml:"vision_model" mapstructure:"vision_model"`
	SegmentationModel     string `yaml:"segmentation_model" mapstructure:"segmentation_model"`
	MaxTokens             int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	SegmentationMaxTokens int    `yaml:"segmentation_max_tokens" mapstructure:"segmentation_max_tokens"`
	Seed                  int    `yaml:"seed" mapstructure:"seed"`
}

// KeyConfig holds an API key, either inline or in Secrets Manager.
type KeyConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	SecretARN string `yaml:"secret_arn" mapstructure:"secret_arn"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	SecretARN string `yaml:"secret_arn" mapstructure:"secret_arn"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTSecretARN string `yaml:"jwt_secret_arn" mapstructure:"jwt_secret_arn"`
	Issuer       string `yaml:"issuer" mapstructure:"issuer"`
}

// UsageConfig configures usage record delivery. An empty queue disables it.
type UsageConfig struct {
	QueueURL string `yaml:"queue_url" mapstructure:"queue_url"`
}

// ArchiveConfig configures the original-document archive. An empty bucket
// disables it.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
}

// RetryConfig configures call-site retries of provider calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// PricingConfig overrides per-model token rates. Models are listed rather
// than keyed because model names contain dots.
type PricingConfig struct {
	Models []ModelPrice `yaml:"models" mapstructure:"models"`
}

// ModelPrice is one model's pricing in USD per million tokens.
type ModelPrice struct {
	Model  string  `yaml:"model" mapstructure:"model"`
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the local HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCUFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "docuflow.db")
	v.SetDefault("store.db_secret_arn", "")
	v.SetDefault("provider.extraction", ProviderOpenAI)
	v.SetDefault("provider.segmentation", ProviderGemini)
	v.SetDefault("provider.fast_model", "gpt-4o-mini")
	v.SetDefault("provider.vision_model", "gpt-4o")
	v.SetDefault("provider.segmentation_model", "gemini-2.5-flash")
	v.SetDefault("provider.max_tokens", 2000)
	v.SetDefault("provider.segmentation_max_tokens", 8192)
	v.SetDefault("provider.seed", 42)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.secret_arn", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.secret_arn", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.secret_arn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_secret_arn", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("usage.queue_url", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "500ms")
	v.SetDefault("retry.max_backoff", "8s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "lambda", "analyze",
// "serve", or "cli". The analyze function runs without a database and the
// CLI without token verification.
func (c *Config) Validate(mode string) error {
	var problems []string
	needsDB := mode == "lambda" || mode == "serve"

	switch c.Store.Driver {
	case "postgres":
		if needsDB && c.Store.DatabaseURL == "" && c.Store.DBSecretARN == "" {
			problems = append(problems, "store.database_url or store.db_secret_arn is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	known := []string{ProviderOpenAI, ProviderGemini, ProviderAnthropic}
	if !slices.Contains(known, c.Provider.Extraction) {
		problems = append(problems, "provider.extraction must be openai, gemini, or anthropic")
	}
	if !slices.Contains(known, c.Provider.Segmentation) {
		problems = append(problems, "provider.segmentation must be openai, gemini, or anthropic")
	}

	if mode != "cli" && c.Auth.JWTSecret == "" && c.Auth.JWTSecretARN == "" {
		problems = append(problems, "auth.jwt_secret or auth.jwt_secret_arn is required")
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// APIKey returns the configured key of a provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAI.APIKey
	case ProviderGemini:
		return c.Gemini.APIKey
	case ProviderAnthropic:
		return c.Anthropic.APIKey
	}
	return ""
}

// ResolveSecrets fills empty keys from Secrets Manager where an ARN is set.
// JSON secrets are read by their conventional environment-style field name.
func (c *Config) ResolveSecrets(ctx context.Context, secrets awsutil.SecretsProvider) error {
	targets := []struct {
		value *string
		arn   string
		field string
	}{
		{&c.OpenAI.APIKey, c.OpenAI.SecretARN, "OPENAI_API_KEY"},
		{&c.Gemini.APIKey, c.Gemini.SecretARN, "GEMINI_API_KEY"},
		{&c.Anthropic.APIKey, c.Anthropic.SecretARN, "ANTHROPIC_API_KEY"},
		{&c.Auth.JWTSecret, c.Auth.JWTSecretARN, "JWT_SECRET"},
	}
	for _, t := range targets {
		if *t.value != "" || t.arn == "" {
			continue
		}
		if secrets == nil {
			return eris.Errorf("config: secret %s configured without a secrets provider", t.arn)
		}
		val, err := secrets.GetSecretField(ctx, t.arn, t.field)
		if err != nil {
			return eris.Wrapf(err, "config: resolve %s", t.field)
		}
		*t.value = val
	}
	return nil
}

// NeedsSecrets reports whether any value is stored in Secrets Manager.
func (c *Config) NeedsSecrets() bool {
	return c.Store.DBSecretARN != "" || c.OpenAI.SecretARN != "" || c.Gemini.SecretARN != "" ||
		c.Anthropic.SecretARN != "" || c.Auth.JWTSecretARN != ""
}

// Rates returns the default model rates with configured overrides applied.
func (p PricingConfig) Rates() map[string]usage.ModelRate {
	rates := usage.DefaultRates()
	for _, m := range p.Models {
		if m.Model == "" {
			continue
		}
		rates[m.Model] = usage.ModelRate{Input: m.Input, Output: m.Output}
	}
	return rates
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

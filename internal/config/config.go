// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.agentic-rag/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder
//   - Workflow: search and rewrite budgets, grading concurrency
//   - Stores: the retrieval stores the workflow fans out to
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: HTTP listen address
//   - Tracing: OTLP trace export
//
// Security: sensitive data (passwords) is never logged; the config directory
// uses 0750 permissions.
//
// Error handling uses sentinel errors checkable with errors.Is(), wrapped
// with context via fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidMaxSearches indicates the search budget is out of range.
	ErrInvalidMaxSearches = errors.New("invalid max searches")

	// ErrInvalidMaxRewrites indicates the rewrite budget is out of range.
	ErrInvalidMaxRewrites = errors.New("invalid max rewrites")

	// ErrInvalidGradeConcurrency indicates the grading concurrency is out of range.
	ErrInvalidGradeConcurrency = errors.New("invalid grade concurrency")

	// ErrNoStores indicates no retrieval stores are configured.
	ErrNoStores = errors.New("no retrieval stores configured")

	// ErrInvalidStore indicates a retrieval store entry is invalid.
	ErrInvalidStore = errors.New("invalid retrieval store")

	// ErrDuplicateStore indicates two stores share a name.
	ErrDuplicateStore = errors.New("duplicate retrieval store name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidHTTPAddr indicates the HTTP listen address is invalid.
	ErrInvalidHTTPAddr = errors.New("invalid HTTP listen address")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

const (
	// DefaultGeminiEmbedderModel outputs 3072 dimensions by default but
	// supports truncation to the 768 dimensions our pgvector schema uses.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxSearches bounds retrieval rounds per question.
	DefaultMaxSearches = 3

	// DefaultMaxRewrites bounds query rewrites per question.
	DefaultMaxRewrites = 1

	// MaxAllowedSearches caps the configurable search budget.
	MaxAllowedSearches = 10

	// MaxAllowedRewrites caps the configurable rewrite budget.
	MaxAllowedRewrites = 5

	// MaxStoreK caps per-store result counts.
	MaxStoreK = 50
)

// StoreConfig describes one retrieval store the workflow fans out to.
type StoreConfig struct {
	// Name identifies the store in traces and API responses.
	Name string `mapstructure:"name" json:"name"`

	// Description tells the decision model what the store contains.
	Description string `mapstructure:"description" json:"description"`

	// K is the number of passages this store returns per search.
	K int `mapstructure:"k" json:"k"`

	// Namespace scopes the store to one document partition. Empty searches all.
	Namespace string `mapstructure:"namespace" json:"namespace"`

	// DenseWeight and LexicalWeight blend the hybrid ranking signals.
	// Both zero means use the store defaults (0.6/0.4).
	DenseWeight   float64 `mapstructure:"dense_weight" json:"dense_weight"`
	LexicalWeight float64 `mapstructure:"lexical_weight" json:"lexical_weight"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON(). When
// adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Workflow budgets
	MaxSearches      int `mapstructure:"max_searches" json:"max_searches"`
	MaxRewrites      int `mapstructure:"max_rewrites" json:"max_rewrites"`
	GradeConcurrency int `mapstructure:"grade_concurrency" json:"grade_concurrency"`

	// Model call rate limit in requests per minute. Zero disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`

	// Retrieval stores
	Stores []StoreConfig `mapstructure:"stores" json:"stores"`

	// HTTP server
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tracing configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".agentic-rag")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if len(cfg.Stores) == 0 {
		cfg.Stores = defaultStores()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// defaultStores returns the single-store setup used when no stores are
// configured.
func defaultStores() []StoreConfig {
	return []StoreConfig{
		{
			Name:        "documents",
			Description: "General knowledge base of indexed documents",
			K:           2,
		},
	}
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Workflow defaults
	v.SetDefault("max_searches", DefaultMaxSearches)
	v.SetDefault("max_rewrites", DefaultMaxRewrites)
	v.SetDefault("grade_concurrency", 4)
	v.SetDefault("requests_per_minute", 0)

	// HTTP server defaults
	v.SetDefault("http_addr", ":8080")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "rag")
	v.SetDefault("postgres_password", "rag_dev_password")
	v.SetDefault("postgres_db_name", "rag")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "agentic-rag")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
//
// API keys are read directly by the Genkit plugins, not via Viper:
// GEMINI_API_KEY for the Google AI plugin, OPENAI_API_KEY for the OpenAI
// plugin. Validation checks their presence based on the selected provider.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "RAG_PROVIDER")
	mustBind("model_name", "RAG_MODEL_NAME")
	mustBind("embedder_model", "RAG_EMBEDDER_MODEL")
	mustBind("ollama_host", "RAG_OLLAMA_HOST")
	mustBind("max_searches", "RAG_MAX_SEARCHES")
	mustBind("max_rewrites", "RAG_MAX_REWRITES")
	mustBind("requests_per_minute", "RAG_REQUESTS_PER_MINUTE")
	mustBind("http_addr", "RAG_HTTP_ADDR")
	mustBind("tracing.enabled", "RAG_TRACING_ENABLED")
	mustBind("tracing.endpoint", "RAG_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked to prevent substring matches; longer secrets show
// the first and last 2 characters.
//
// THREAT MODEL: this defends against accidental logging of real secrets. It
// is not cryptographically secure. If logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// FullEmbedderName returns the provider-qualified embedder name for Genkit.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.EmbedderModel
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.EmbedderModel
	default:
		return ProviderGoogleAI + "/" + c.EmbedderModel
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

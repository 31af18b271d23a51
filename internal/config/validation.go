package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidProvider, c.Provider,
			[]string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI})
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Workflow budget validation
	if c.MaxSearches < 1 || c.MaxSearches > MaxAllowedSearches {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidMaxSearches, MaxAllowedSearches, c.MaxSearches)
	}
	if c.MaxRewrites < 0 || c.MaxRewrites > MaxAllowedRewrites {
		return fmt.Errorf("%w: must be between 0 and %d, got %d",
			ErrInvalidMaxRewrites, MaxAllowedRewrites, c.MaxRewrites)
	}
	if c.GradeConcurrency < 1 || c.GradeConcurrency > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d",
			ErrInvalidGradeConcurrency, c.GradeConcurrency)
	}

	// 4. Store validation
	if err := c.validateStores(); err != nil {
		return err
	}

	// 5. HTTP server validation
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr cannot be empty", ErrInvalidHTTPAddr)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	// Warn about the default dev password but do not block local development.
	if c.PostgresPassword == "rag_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

func (c *Config) validateStores() error {
	if len(c.Stores) == 0 {
		return ErrNoStores
	}

	seen := make(map[string]struct{}, len(c.Stores))
	for i, store := range c.Stores {
		if store.Name == "" {
			return fmt.Errorf("%w: stores[%d] has no name", ErrInvalidStore, i)
		}
		if _, dup := seen[store.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateStore, store.Name)
		}
		seen[store.Name] = struct{}{}

		if store.K < 0 || store.K > MaxStoreK {
			return fmt.Errorf("%w: %q k must be between 0 and %d, got %d",
				ErrInvalidStore, store.Name, MaxStoreK, store.K)
		}

		// Both zero means defaults apply; otherwise the weights must form a
		// convex combination.
		if store.DenseWeight != 0 || store.LexicalWeight != 0 {
			if store.DenseWeight < 0 || store.LexicalWeight < 0 ||
				math.Abs(store.DenseWeight+store.LexicalWeight-1) > 1e-9 {
				return fmt.Errorf("%w: %q weights must be non-negative and sum to 1, got dense=%v lexical=%v",
					ErrInvalidStore, store.Name, store.DenseWeight, store.LexicalWeight)
			}
		}
	}

	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/hlinh96it/agentic-rag/db"
	"github.com/hlinh96it/agentic-rag/internal/config"
	"github.com/hlinh96it/agentic-rag/internal/knowledge"
	"github.com/hlinh96it/agentic-rag/internal/llm"
	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/observability"
	"github.com/hlinh96it/agentic-rag/internal/retrieval"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first: Genkit's TracerProvider must carry the span processor
	// before any instrumented call runs.
	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	stores, err := provideStores(cfg, pool, embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Stores = stores

	searcher, err := provideSearcher(stores, logger)
	if err != nil {
		return nil, err
	}
	a.Searcher = searcher

	client, err := provideLLM(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.LLM = client

	engine, err := workflow.New(workflow.Config{
		LLM:              client,
		Searcher:         searcher,
		MaxSearches:      cfg.MaxSearches,
		MaxRewrites:      cfg.MaxRewrites,
		GradeConcurrency: cfg.GradeConcurrency,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workflow engine: %w", err)
	}
	a.Engine = engine

	logger.Info("application initialized",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"stores", len(stores),
	)
	return a, nil
}

// provideTracing sets up OTLP trace export when enabled. Export failures
// log a warning and disable tracing rather than blocking startup.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("setting up tracing, continuing without it", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// embedDimensions matches the vector(768) column in the schema. Gemini's
// embedding model outputs 3072 dimensions natively and is truncated via
// embed options; other providers must supply a 768-dimension model.
const embedDimensions = 768

// provideStores creates one hybrid-search store per configured entry, all
// sharing the connection pool.
func provideStores(cfg *config.Config, pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) ([]*knowledge.Store, error) {
	queries := knowledge.NewQueries(pool)

	// Only Gemini understands the truncation option.
	var embedDims int32
	if cfg.Provider != config.ProviderOllama && cfg.Provider != config.ProviderOpenAI {
		embedDims = embedDimensions
	}

	stores := make([]*knowledge.Store, 0, len(cfg.Stores))
	for _, sc := range cfg.Stores {
		store, err := knowledge.New(knowledge.Config{
			Querier:         queries,
			Embedder:        embedder,
			Name:            sc.Name,
			Description:     sc.Description,
			K:               sc.K,
			Namespace:       sc.Namespace,
			DenseWeight:     sc.DenseWeight,
			LexicalWeight:   sc.LexicalWeight,
			EmbedDimensions: embedDims,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating store %q: %w", sc.Name, err)
		}
		stores = append(stores, store)
	}
	return stores, nil
}

// provideSearcher builds the concurrent fan-out over all stores.
func provideSearcher(stores []*knowledge.Store, logger log.Logger) (*retrieval.Multi, error) {
	retrievalStores := make([]retrieval.Store, len(stores))
	for i, s := range stores {
		retrievalStores[i] = s
	}

	searcher, err := retrieval.NewMulti(retrieval.MultiConfig{
		Stores: retrievalStores,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating searcher: %w", err)
	}
	return searcher, nil
}

// provideLLM creates the model client, rate-limited when configured.
func provideLLM(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*llm.Client, error) {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	client, err := llm.New(llm.Config{
		Genkit:    g,
		ModelName: cfg.FullModelName(),
		Limiter:   limiter,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	return client, nil
}

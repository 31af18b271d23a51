// Package app wires configuration, storage, model providers, and the
// workflow engine into a running application. It is the single place that
// knows how all the pieces fit together; entry points (CLI commands, the
// HTTP server) consume the assembled App.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hlinh96it/agentic-rag/internal/api"
	"github.com/hlinh96it/agentic-rag/internal/config"
	"github.com/hlinh96it/agentic-rag/internal/knowledge"
	"github.com/hlinh96it/agentic-rag/internal/llm"
	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/retrieval"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

// App is the assembled application container.
type App struct {
	Config *config.Config

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	// Retrieval and reasoning
	Stores   []*knowledge.Store
	Searcher *retrieval.Multi
	LLM      *llm.Client
	Engine   *workflow.Engine

	logger      log.Logger
	otelCleanup func()
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down application")
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// StoreInfos describes the configured stores for the status endpoint.
func (a *App) StoreInfos() []api.StoreInfo {
	infos := make([]api.StoreInfo, 0, len(a.Stores))
	for _, s := range a.Stores {
		infos = append(infos, api.StoreInfo{
			Name:        s.Name(),
			Description: s.Description(),
			K:           s.K(),
		})
	}
	return infos
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hlinh96it/agentic-rag/internal/log"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

// maxQuestionBytes bounds the request body to keep prompts sane.
const maxQuestionBytes = 64 * 1024

// askHandler handles the question-answering endpoints.
type askHandler struct {
	engine    Runner
	modelName string
	stores    []StoreInfo
	logger    log.Logger
}

// RegisterRoutes registers ask routes on the given mux.
func (h *askHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ask", h.ask)
	mux.HandleFunc("GET /api/v1/ask/status", h.status)
}

// askRequest is the POST /api/v1/ask request body.
type askRequest struct {
	Question string    `json:"question"`
	History  []askTurn `json:"history,omitempty"`
}

type askTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ask runs the workflow for one question and returns the full result:
// answer, retrieved documents, the processing trace, and both counters.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQuestionBytes)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required")
		return
	}

	history := make([]workflow.Turn, 0, len(req.History))
	for i, turn := range req.History {
		switch turn.Role {
		case workflow.RoleUser, workflow.RoleAssistant:
		default:
			writeError(w, http.StatusBadRequest, "invalid_history",
				fmt.Sprintf("history[%d] role %q must be %q or %q", i, turn.Role, workflow.RoleUser, workflow.RoleAssistant))
			return
		}
		history = append(history, workflow.Turn{Role: turn.Role, Content: turn.Content})
	}

	result, err := h.engine.Run(r.Context(), workflow.Request{
		Question: req.Question,
		History:  history,
	})
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, "missing_question", "question is required")
		case errors.Is(err, workflow.ErrAnswerFailed):
			h.logger.Error("answer generation failed", "error", err)
			writeError(w, http.StatusUnprocessableEntity, "answer_failed", "could not generate an answer")
		case errors.Is(err, r.Context().Err()):
			// Client went away; nothing useful to write.
			h.logger.Debug("request cancelled", "error", err)
		default:
			h.logger.Error("workflow run failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusResponse is the GET /api/v1/ask/status response body.
type statusResponse struct {
	Status         string      `json:"status"`
	Model          string      `json:"model"`
	AvailableTools []StoreInfo `json:"available_tools"`
	MaxSearches    int         `json:"max_searches"`
	MaxRewrites    int         `json:"max_rewrites"`
}

// status reports the models and retrieval stores the service is running with.
func (h *askHandler) status(w http.ResponseWriter, _ *http.Request) {
	tools := h.stores
	if tools == nil {
		tools = []StoreInfo{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "ready",
		Model:          h.modelName,
		AvailableTools: tools,
		MaxSearches:    h.engine.MaxSearches(),
		MaxRewrites:    h.engine.MaxRewrites(),
	})
}

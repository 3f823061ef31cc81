package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ModelLister is the backend call the models endpoint proxies.
type ModelLister interface {
	ListModels(ctx context.Context) (json.RawMessage, error)
}

// ModelsHandler proxies the gateway's model list. The list changes rarely
// and the endpoint is unauthenticated, so responses are cached in-process
// to keep casual polling off the backend.
type ModelsHandler struct {
	backend ModelLister
	logger  *slog.Logger

	mu        sync.Mutex
	cached    json.RawMessage
	fetchedAt time.Time

	ttl time.Duration
	now func() time.Time
}

// NewModelsHandler creates a ModelsHandler with a 5 minute cache.
func NewModelsHandler(backend ModelLister, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{
		backend: backend,
		logger:  logger,
		ttl:     5 * time.Minute,
		now:     time.Now,
	}
}

// List returns the gateway's model list verbatim.
// GET /models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	body, err := h.cachedModels(r.Context())
	if err != nil {
		h.logger.Error("model list fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch model list")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *ModelsHandler) cachedModels(ctx context.Context) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cached != nil && h.now().Sub(h.fetchedAt) < h.ttl {
		return h.cached, nil
	}
	body, err := h.backend.ListModels(ctx)
	if err != nil {
		// Serve a stale list over an error when one exists.
		if h.cached != nil {
			return h.cached, nil
		}
		return nil, err
	}
	h.cached = body
	h.fetchedAt = h.now()
	return body, nil
}

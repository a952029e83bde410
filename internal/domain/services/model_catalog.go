package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/pkg/constants"
)

// ModelCatalog caches the endpoint's model list with a TTL so the API and
// orchestrator can read it without hitting the endpoint on every call.
type ModelCatalog struct {
	llm ports.LLMPort

	mu        sync.RWMutex
	models    []string
	timestamp time.Time
	ttl       time.Duration
}

// NewModelCatalog creates a catalog with the default TTL.
func NewModelCatalog(llm ports.LLMPort) *ModelCatalog {
	return &ModelCatalog{
		llm: llm,
		ttl: constants.ModelCacheTTL,
	}
}

// Models returns the cached model list, refreshing it when stale. The list
// is sorted lexicographically by the endpoint client.
func (mc *ModelCatalog) Models(ctx context.Context) ([]string, error) {
	mc.mu.RLock()
	if mc.models != nil && time.Since(mc.timestamp) < mc.ttl {
		models := make([]string, len(mc.models))
		copy(models, mc.models)
		mc.mu.RUnlock()
		return models, nil
	}
	mc.mu.RUnlock()

	return mc.Refresh(ctx)
}

// Refresh forces a fetch from the endpoint and replaces the cache.
func (mc *ModelCatalog) Refresh(ctx context.Context) ([]string, error) {
	models, err := mc.llm.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	mc.mu.Lock()
	mc.models = models
	mc.timestamp = time.Now()
	mc.mu.Unlock()

	out := make([]string, len(models))
	copy(out, models)
	return out, nil
}

// Cached returns the current cache contents without touching the endpoint.
// An empty slice means no successful refresh has happened yet.
func (mc *ModelCatalog) Cached() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	models := make([]string, len(mc.models))
	copy(models, mc.models)
	return models
}

// Invalidate clears the cache, forcing the next read to refresh.
func (mc *ModelCatalog) Invalidate() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.models = nil
	mc.timestamp = time.Time{}
}

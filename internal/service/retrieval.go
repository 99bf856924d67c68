// Package service contains the orchestration core: retrieval, tool
// execution, the turn orchestrator, ingestion, speech, and auth.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/port/embedding"
	"github.com/stayline/concierge/internal/port/vectorstore"
)

// RetrievalService embeds queries and searches the tenant's slice of the
// knowledge base.
type RetrievalService struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	cfg      *config.Retrieval
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(embedder embedding.Embedder, store vectorstore.Store, cfg *config.Retrieval) *RetrievalService {
	return &RetrievalService{embedder: embedder, store: store, cfg: cfg}
}

// Search embeds the query and returns the top matches from the tenant's
// namespace, best first. Failures wrap domain.ErrRetrieval.
func (s *RetrievalService) Search(ctx context.Context, tenantID, query string, topK int) ([]vectorstore.QueryResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}

	results, err := s.store.Query(ctx, tenantID, vec, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query vectors: %w", domain.ErrRetrieval, err)
	}

	slog.Debug("retrieval search", "tenant_id", tenantID, "top_k", topK, "hits", len(results))
	return results, nil
}

// ContextTexts returns just the chunk texts of a search, for prompt
// assembly. Empty texts are skipped.
func ContextTexts(results []vectorstore.QueryResult) []string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text == "" {
			continue
		}
		texts = append(texts, r.Text)
	}
	return texts
}

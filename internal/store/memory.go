package store

import (
	"context"
	"fmt"
	"strings"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/embedding"
)

// MemoryStore is the degraded "fallback" backend: no vector extension, no
// lexical index, just an in-process slice of documents per collection. It
// requires no external dependency and is always reachable, so it is the
// backend AutoStore demotes to when the primary is unavailable, and the one
// collection_backend=fallback selects directly.
type MemoryStore struct {
	docs     map[Collection][]Document
	embedder embedding.Embedder // optional; nil disables vector search
}

// NewMemoryStore builds a store from a preloaded document set. Ingestion is
// out of scope for this engine; callers populate docs however they see fit.
func NewMemoryStore(docs map[Collection][]Document, embedder embedding.Embedder) *MemoryStore {
	return &MemoryStore{docs: docs, embedder: embedder}
}

func (s *MemoryStore) TestConnection(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) VectorSearch(ctx context.Context, collection Collection, queryText string, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	if s.embedder == nil {
		return s.substringScan(collection, queryText, k, filters)
	}
	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	hits := make([]ragcontext.RawHit, 0, k)
	for _, d := range s.docs[collection] {
		if !matchesFilters(d, filters) {
			continue
		}
		sim := cosineSimilarity([]float32(queryVec), d.Embedding)
		if sim < threshold {
			continue
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: sim,
			Kind:     ragcontext.VectorHit,
		})
	}
	out := ragcontext.Normalize(hits, fmt.Sprintf("vector_%s", collection))
	return ragcontext.TopK(out, k), nil
}

// KeywordSearch runs a case-insensitive substring scan over title+description
// with a uniform score of 0.5, matching the documented lexical-index-absent
// fallback behavior.
func (s *MemoryStore) KeywordSearch(ctx context.Context, collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error) {
	return s.substringScan(collection, queryText, k, filters)
}

func (s *MemoryStore) substringScan(collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error) {
	needle := strings.ToLower(queryText)
	hits := make([]ragcontext.RawHit, 0, k)
	for _, d := range s.docs[collection] {
		if !matchesFilters(d, filters) {
			continue
		}
		haystack := strings.ToLower(d.Title + " " + d.Description)
		if !strings.Contains(haystack, needle) {
			continue
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: 0.5,
			Kind:     ragcontext.PrenormalizedHit,
		})
	}
	out := ragcontext.Normalize(hits, fmt.Sprintf("keyword_%s", collection))
	return ragcontext.TopK(out, k), nil
}

func (s *MemoryStore) HybridSearch(ctx context.Context, collection Collection, queryText string, k int, threshold, vectorWeight, keywordWeight float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	fetchK := k * 2
	vectorHits, vErr := s.VectorSearch(ctx, collection, queryText, fetchK, threshold, filters)
	if vErr != nil {
		vectorHits = nil
	}
	keywordHits, _ := s.KeywordSearch(ctx, collection, queryText, fetchK, filters)
	return fuseVectorKeyword(vectorHits, keywordHits, k, vectorWeight, keywordWeight), nil
}

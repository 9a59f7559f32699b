package strategy

import (
	"context"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
	"github.com/tuannvm/multiagent-rag/internal/store"
)

// Compression routes a vector search against both collections, then
// reranks. It is the default strategy and the preferred urgent/production
// path since it is the fastest quality option.
type Compression struct {
	Store    store.TicketStore
	Reranker Reranker // nil disables reranking
	Enabled  bool      // mirrors reranker_enabled configuration
	log      interface{ Warnf(string, ...interface{}) }
}

// NewCompression builds the contextual compression strategy. Pass a nil
// reranker, or enabled=false, to always take the raw-vector-score path.
func NewCompression(ticketStore store.TicketStore, reranker Reranker, enabled bool) *Compression {
	return &Compression{Store: ticketStore, Reranker: reranker, Enabled: enabled, log: logging.Named("strategy.compression")}
}

func (c *Compression) Name() string { return "Compression" }

// NoRerank returns a copy of c with reranking disabled, used by the
// orchestrator's fallback path: falling back to Compression is always a
// degraded, no-rerank pass, even when the originally chosen strategy was
// Compression itself.
func (c *Compression) NoRerank() *Compression {
	degraded := *c
	degraded.Enabled = false
	return &degraded
}

func (c *Compression) Run(ctx context.Context, query string, hints Hints, k int) ([]ragcontext.RetrievedContext, Metadata, error) {
	limit := k
	if hints.ProductionIncident && limit > 5 {
		limit = 5
	}

	fetchK := limit * 2
	type result struct {
		collection store.Collection
		hits       []ragcontext.RetrievedContext
		err        error
	}

	collections := []store.Collection{store.Bugs, store.Releases}
	results := make(chan result, len(collections))
	for _, coll := range collections {
		go func(coll store.Collection) {
			hits, err := c.Store.VectorSearch(ctx, coll, query, fetchK, 0.1, store.Filters{})
			results <- result{collection: coll, hits: hits, err: err}
		}(coll)
	}

	var warnings []string
	lists := make([][]ragcontext.RetrievedContext, 0, len(collections))
	weights := make([]float64, 0, len(collections))
	failures := 0
	for range collections {
		r := <-results
		if r.err != nil {
			c.log.Warnf("compression: vector search failed for %s: %v", r.collection, r.err)
			warnings = append(warnings, string(r.collection)+": "+r.err.Error())
			failures++
			continue
		}
		lists = append(lists, r.hits)
		weights = append(weights, 0.5)
	}

	if failures == len(collections) {
		return nil, Metadata{Warnings: warnings}, ragerr.Wrap(ragerr.StrategyFailed, "compression: all collections failed", nil)
	}

	fused := ragcontext.TopK(ragcontext.Fuse(lists, weights), fetchK)

	rerankerUsed := false
	if c.Enabled && c.Reranker != nil {
		reranked, err := c.Reranker.Rerank(ctx, query, fused, limit)
		if err != nil {
			c.log.Warnf("compression: reranker failed, falling back to raw vector score: %v", err)
			warnings = append(warnings, "reranker_failed: "+err.Error())
		} else {
			fused = reranked
			rerankerUsed = true
		}
	}

	if !rerankerUsed {
		fused = ragcontext.TopK(fused, limit)
	}

	for i := range fused {
		fused[i].Source = "compression_fused"
	}

	return fused, Metadata{
		MethodsUsed:  []string{"vector"},
		RerankerUsed: rerankerUsed,
		Warnings:     warnings,
		NumResults:   len(fused),
	}, nil
}

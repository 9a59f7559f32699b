package strategy

import (
	"context"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
	"github.com/tuannvm/multiagent-rag/internal/store"
)

// BM25 routes a keyword search against both collections and fuses the
// results 50/50. It is selected when the query carries an identifier
// pattern or is otherwise lexically specific.
type BM25 struct {
	Store store.TicketStore
	log   interface{ Warnf(string, ...interface{}) }
}

// NewBM25 builds the BM25 strategy over ticketStore.
func NewBM25(ticketStore store.TicketStore) *BM25 {
	return &BM25{Store: ticketStore, log: logging.Named("strategy.bm25")}
}

func (b *BM25) Name() string { return "BM25" }

func (b *BM25) Run(ctx context.Context, query string, hints Hints, k int) ([]ragcontext.RetrievedContext, Metadata, error) {
	type result struct {
		collection store.Collection
		hits       []ragcontext.RetrievedContext
		err        error
	}

	collections := []store.Collection{store.Bugs, store.Releases}
	results := make(chan result, len(collections))

	for _, c := range collections {
		go func(c store.Collection) {
			hits, err := b.Store.KeywordSearch(ctx, c, query, k, store.Filters{})
			results <- result{collection: c, hits: hits, err: err}
		}(c)
	}

	var warnings []string
	lists := make([][]ragcontext.RetrievedContext, 0, len(collections))
	weights := make([]float64, 0, len(collections))
	failures := 0

	for range collections {
		r := <-results
		if r.err != nil {
			b.log.Warnf("bm25: keyword search failed for %s: %v", r.collection, r.err)
			warnings = append(warnings, string(r.collection)+": "+r.err.Error())
			failures++
			continue
		}
		lists = append(lists, r.hits)
		weights = append(weights, 0.5)
	}

	if failures == len(collections) {
		return nil, Metadata{Warnings: warnings}, ragerr.Wrap(ragerr.StrategyFailed, "bm25: all collections failed", nil)
	}

	fused := ragcontext.Fuse(lists, weights)
	topped := ragcontext.TopK(fused, k)

	// retag fused entries as "bm25_fused" so callers can see which strategy's
	// fusion produced them; the tag does not name the collection.
	for i := range topped {
		topped[i].Source = "bm25_fused"
	}

	return topped, Metadata{
		MethodsUsed:      []string{"keyword"},
		KeywordIndexUsed: true,
		Warnings:         warnings,
		NumResults:       len(topped),
	}, nil
}

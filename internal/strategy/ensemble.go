package strategy

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
	"github.com/tuannvm/multiagent-rag/internal/store"
)

// Paraphraser produces up to n alternate phrasings of a query, used by the
// ensemble's multi-query-expansion sub-retrieval.
type Paraphraser interface {
	Paraphrase(ctx context.Context, query string, n int) ([]string, error)
}

// Ensemble runs four equally-weighted sub-retrievals concurrently
// (multi-query expansion, contextual compression, keyword, naive vector),
// deduplicates, and fuses. This is the "comprehensive" path, selected when
// the caller signals patience.
type Ensemble struct {
	Store       store.TicketStore
	Compression *Compression
	Paraphraser Paraphraser // nil disables multi-query expansion
	log         interface{ Warnf(string, ...interface{}) }
}

// NewEnsemble builds the ensemble strategy.
func NewEnsemble(ticketStore store.TicketStore, compression *Compression, paraphraser Paraphraser) *Ensemble {
	return &Ensemble{Store: ticketStore, Compression: compression, Paraphraser: paraphraser, log: logging.Named("strategy.ensemble")}
}

func (e *Ensemble) Name() string { return "Ensemble" }

func (e *Ensemble) Run(ctx context.Context, query string, hints Hints, k int) ([]ragcontext.RetrievedContext, Metadata, error) {
	type subResult struct {
		method string
		hits   []ragcontext.RetrievedContext
	}

	p := pool.NewWithResults[subResult]().WithContext(ctx)

	p.Go(func(ctx context.Context) (subResult, error) {
		hits := e.multiQueryExpansion(ctx, query, k)
		return subResult{method: "multi_query", hits: hits}, nil
	})
	p.Go(func(ctx context.Context) (subResult, error) {
		hits, _, err := e.Compression.Run(ctx, query, hints, k)
		if err != nil {
			e.log.Warnf("ensemble: compression sub-retrieval failed: %v", err)
			return subResult{method: "compression"}, nil
		}
		return subResult{method: "compression", hits: hits}, nil
	})
	p.Go(func(ctx context.Context) (subResult, error) {
		hits := e.keywordBoth(ctx, query, k)
		return subResult{method: "keyword", hits: hits}, nil
	})
	p.Go(func(ctx context.Context) (subResult, error) {
		hits := e.naiveVector(ctx, query, k)
		return subResult{method: "naive", hits: hits}, nil
	})

	subResults, err := p.Wait()
	if err != nil {
		return nil, Metadata{}, ragerr.Wrap(ragerr.StrategyFailed, "ensemble: sub-retrieval pool failed", err)
	}

	var methodsUsed []string
	var warnings []string
	lists := make([][]ragcontext.RetrievedContext, 0, len(subResults))
	weights := make([]float64, 0, len(subResults))
	empty := 0

	for _, sr := range subResults {
		if len(sr.hits) == 0 {
			warnings = append(warnings, sr.method+": no results")
			empty++
			continue
		}
		methodsUsed = append(methodsUsed, sr.method)
		lists = append(lists, sr.hits)
		weights = append(weights, 0.25)
	}

	if empty == len(subResults) {
		return nil, Metadata{Warnings: warnings}, ragerr.Wrap(ragerr.StrategyFailed, "ensemble: all sub-retrievals failed", nil)
	}

	deduped := make([][]ragcontext.RetrievedContext, len(lists))
	for i, l := range lists {
		deduped[i] = ragcontext.DeduplicateByHash(l)
	}

	fused := ragcontext.TopK(ragcontext.Fuse(deduped, weights), k)
	for i := range fused {
		fused[i].Source = "ensemble_fused"
	}

	return fused, Metadata{
		MethodsUsed: methodsUsed,
		Warnings:    warnings,
		NumResults:  len(fused),
	}, nil
}

func (e *Ensemble) multiQueryExpansion(ctx context.Context, query string, k int) []ragcontext.RetrievedContext {
	if e.Paraphraser == nil {
		return nil
	}
	paraphrases, err := e.Paraphraser.Paraphrase(ctx, query, 3)
	if err != nil || len(paraphrases) == 0 {
		e.log.Warnf("ensemble: multi-query expansion failed: %v", err)
		return nil
	}

	var all []ragcontext.RetrievedContext
	for _, q := range paraphrases {
		for _, coll := range []store.Collection{store.Bugs, store.Releases} {
			hits, err := e.Store.VectorSearch(ctx, coll, q, k, 0.1, store.Filters{})
			if err != nil {
				continue
			}
			all = append(all, hits...)
		}
	}
	return ragcontext.DeduplicateByHash(all)
}

func (e *Ensemble) keywordBoth(ctx context.Context, query string, k int) []ragcontext.RetrievedContext {
	var all []ragcontext.RetrievedContext
	for _, coll := range []store.Collection{store.Bugs, store.Releases} {
		hits, err := e.Store.KeywordSearch(ctx, coll, query, k, store.Filters{})
		if err != nil {
			continue
		}
		all = append(all, hits...)
	}
	return all
}

func (e *Ensemble) naiveVector(ctx context.Context, query string, k int) []ragcontext.RetrievedContext {
	var all []ragcontext.RetrievedContext
	for _, coll := range []store.Collection{store.Bugs, store.Releases} {
		hits, err := e.Store.VectorSearch(ctx, coll, query, k, 0.1, store.Filters{})
		if err != nil {
			continue
		}
		all = append(all, hits...)
	}
	return all
}

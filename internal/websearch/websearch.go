package websearch

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
	"github.com/tuannvm/multiagent-rag/internal/strategy"
)

// Hit is a single result from the external search provider.
type Hit struct {
	Title     string
	URL       string
	Snippet   string
	Timestamp string
	Relevance float64 // 0 when the provider supplies no relevance score
}

// Provider is the external search back-end the strategy dispatches to.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Hit, error)
	// SearchStatusPages runs a narrower search against status-page sources,
	// used for the status_check classification. Implementations that have
	// no such distinction may just call Search.
	SearchStatusPages(ctx context.Context, query string) ([]Hit, error)
}

// Strategy implements the C5 web-search capability.
type Strategy struct {
	Planner  *Planner
	Provider Provider
	Fanout   int
	Timeout  time.Duration
	log      interface{ Warnf(string, ...interface{}) }
}

// New builds the web-search strategy. fanout bounds concurrent provider
// calls (default 3); timeout bounds the whole execution phase (default 20s).
func New(planner *Planner, provider Provider, fanout int, timeout time.Duration) *Strategy {
	if fanout <= 0 {
		fanout = 3
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Strategy{Planner: planner, Provider: provider, Fanout: fanout, Timeout: timeout, log: logging.Named("strategy.websearch")}
}

func (s *Strategy) Name() string { return "WebSearch" }

func (s *Strategy) Run(ctx context.Context, query string, hints strategy.Hints, k int) ([]ragcontext.RetrievedContext, strategy.Metadata, error) {
	plan := s.Planner.Plan(ctx, query, hints.UserCanWait, hints.ProductionIncident)

	execCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	p := pool.NewWithResults[[]Hit]().WithContext(execCtx).WithMaxGoroutines(s.Fanout)
	var warnings []string

	for _, q := range plan.Searches {
		query := q
		p.Go(func(ctx context.Context) ([]Hit, error) {
			var hits []Hit
			var err error
			if plan.Classification == StatusCheck {
				hits, err = s.Provider.SearchStatusPages(ctx, query)
			} else {
				hits, err = s.Provider.Search(ctx, query)
			}
			if err != nil {
				// individual searches may fail without failing the strategy
				return nil, nil
			}
			return hits, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, strategy.Metadata{Warnings: warnings}, ragerr.Wrap(ragerr.StrategyFailed, "websearch: execution pool failed", err)
	}

	seenURLs := make(map[string]struct{})
	var all []Hit
	for _, hits := range results {
		for _, h := range hits {
			if h.URL != "" {
				if _, ok := seenURLs[h.URL]; ok {
					continue
				}
				seenURLs[h.URL] = struct{}{}
			}
			all = append(all, h)
		}
	}

	source := fmt.Sprintf("web_%s", s.Provider.Name())
	rawHits := make([]ragcontext.RawHit, 0, len(all))
	for i, h := range all {
		score := h.Relevance
		if score == 0 {
			score = 1 - float64(i)/float64(len(all))
		}
		rawHits = append(rawHits, ragcontext.RawHit{
			Content:  fmt.Sprintf("Title: %s\n\nContent: %s\n\nURL: %s", h.Title, h.Snippet, h.URL),
			Metadata: map[string]string{"url": h.URL, "title": h.Title, "timestamp": h.Timestamp},
			RawScore: score,
			Kind:     ragcontext.PrenormalizedHit,
		})
	}

	out := ragcontext.Normalize(rawHits, source)
	limit := k
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	out = ragcontext.TopK(out, limit)

	return out, strategy.Metadata{
		MethodsUsed: []string{string(plan.Classification)},
		Warnings:    warnings,
		NumResults:  len(out),
	}, nil
}

package store

import (
	"context"
	"sync"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// AutoStore tries primary first and demotes to fallback permanently on the
// first primary error of any kind, logging the demotion once per process so repeated
// requests after an outage don't flood the log.
type AutoStore struct {
	primary  TicketStore
	fallback TicketStore

	mu       sync.Mutex
	demoted  bool
	warnOnce sync.Once
}

// NewAutoStore wires the "auto" collection_backend: primary with fallback on error.
func NewAutoStore(primary, fallback TicketStore) *AutoStore {
	return &AutoStore{primary: primary, fallback: fallback}
}

func (a *AutoStore) active() TicketStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.demoted {
		return a.fallback
	}
	return a.primary
}

func (a *AutoStore) demote(err error) {
	a.mu.Lock()
	a.demoted = true
	a.mu.Unlock()
	a.warnOnce.Do(func() {
		logging.Warnf("store: demoting to fallback backend after primary error: %v", err)
	})
}

func (a *AutoStore) TestConnection(ctx context.Context) error {
	if err := a.primary.TestConnection(ctx); err != nil {
		a.demote(err)
		return a.fallback.TestConnection(ctx)
	}
	return nil
}

func (a *AutoStore) VectorSearch(ctx context.Context, collection Collection, queryText string, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	out, err := a.active().VectorSearch(ctx, collection, queryText, k, threshold, filters)
	if err != nil && a.active() == a.primary {
		a.demote(err)
		return a.fallback.VectorSearch(ctx, collection, queryText, k, threshold, filters)
	}
	return out, err
}

func (a *AutoStore) KeywordSearch(ctx context.Context, collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error) {
	out, err := a.active().KeywordSearch(ctx, collection, queryText, k, filters)
	if err != nil && a.active() == a.primary {
		a.demote(err)
		return a.fallback.KeywordSearch(ctx, collection, queryText, k, filters)
	}
	return out, err
}

func (a *AutoStore) HybridSearch(ctx context.Context, collection Collection, queryText string, k int, threshold, vectorWeight, keywordWeight float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	out, err := a.active().HybridSearch(ctx, collection, queryText, k, threshold, vectorWeight, keywordWeight, filters)
	if err != nil && a.active() == a.primary {
		a.demote(err)
		return a.fallback.HybridSearch(ctx, collection, queryText, k, threshold, vectorWeight, keywordWeight, filters)
	}
	return out, err
}

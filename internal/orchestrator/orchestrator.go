// Package orchestrator drives the per-request state machine
// SupervisorDecide -> Retrieve -> Compose -> Done (C9), with a degraded
// Compression fallback on strategy timeout or hard failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/metrics"
	"github.com/tuannvm/multiagent-rag/internal/strategy"
	"github.com/tuannvm/multiagent-rag/internal/supervisor"
	"github.com/tuannvm/multiagent-rag/internal/writer"
)

const composeBudget = 5 * time.Second
const defaultTopK = 10

// StrategyTimeouts names the per-strategy execution deadline, keyed by the
// strategy's Name().
type StrategyTimeouts map[string]time.Duration

// DefaultStrategyTimeouts matches the engine's documented defaults.
func DefaultStrategyTimeouts() StrategyTimeouts {
	return StrategyTimeouts{
		"BM25":        5 * time.Second,
		"Compression": 10 * time.Second,
		"Ensemble":    30 * time.Second,
		"WebSearch":   20 * time.Second,
		"LogSearch":   20 * time.Second,
	}
}

// Response is the fully assembled result of a single request.
type Response struct {
	Query                string
	FinalAnswer          string
	RelevantTickets      []writer.Reference
	RoutingDecision      string
	RoutingReasoning     string
	RetrievalMethod      string
	RetrievedContexts    []ragcontext.RetrievedContext
	RetrievalMetadata    strategy.Metadata
	UserCanWait          bool
	ProductionIncident   bool
	Timestamp            time.Time
	TotalProcessingTime  time.Duration
}

// Orchestrator wires the supervisor, the strategy registry, and the writer
// into the full request pipeline.
type Orchestrator struct {
	Supervisor *supervisor.Supervisor
	Strategies map[string]strategy.Strategy
	Writer     *writer.Writer
	Timeouts   StrategyTimeouts
	TopK       int
	Metrics    *metrics.Registry
	log        interface {
		Warnf(string, ...interface{})
		Infof(string, ...interface{})
	}
}

// New builds an orchestrator. timeouts/topK of zero value fall back to
// DefaultStrategyTimeouts and 10 respectively. reg may be nil, in which case
// no strategy/fallback metrics are recorded.
func New(sup *supervisor.Supervisor, strategies map[string]strategy.Strategy, w *writer.Writer, timeouts StrategyTimeouts, topK int, reg *metrics.Registry) *Orchestrator {
	if timeouts == nil {
		timeouts = DefaultStrategyTimeouts()
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Orchestrator{
		Supervisor: sup,
		Strategies: strategies,
		Writer:     w,
		Timeouts:   timeouts,
		TopK:       topK,
		Metrics:    reg,
		log:        logging.Named("orchestrator"),
	}
}

// Process runs a single request through SupervisorDecide -> Retrieve ->
// Compose -> Done. The overall deadline is the chosen strategy's timeout
// plus the compose budget, spanning both Retrieve and Compose; a context
// cancellation or deadline exceeded during Retrieve triggers the same
// fallback path as a hard strategy failure.
func (o *Orchestrator) Process(ctx context.Context, query string, userCanWait, productionIncident bool) Response {
	start := time.Now()

	plan := o.Supervisor.Decide(ctx, query, userCanWait, productionIncident)

	budget, ok := o.Timeouts[string(plan.Strategy)]
	if !ok {
		budget = 10 * time.Second
	}
	overallCtx, cancel := context.WithTimeout(ctx, budget+composeBudget)
	defer cancel()

	hints := strategy.Hints{UserCanWait: userCanWait, ProductionIncident: productionIncident}
	contexts, meta, method := o.retrieve(overallCtx, plan, query, hints)

	result := o.Writer.Compose(overallCtx, query, method, productionIncident, contexts)

	return Response{
		Query:               query,
		FinalAnswer:          result.Answer,
		RelevantTickets:      result.References,
		RoutingDecision:      string(plan.Strategy),
		RoutingReasoning:     plan.Rationale,
		RetrievalMethod:      method,
		RetrievedContexts:    contexts,
		RetrievalMetadata:    meta,
		UserCanWait:          userCanWait,
		ProductionIncident:   productionIncident,
		Timestamp:            start.UTC(),
		TotalProcessingTime:  time.Since(start),
	}
}

// retrieve dispatches the chosen strategy under its timeout, falling back
// to a single degraded Compression pass on timeout or hard failure, and
// finally to an empty context list if that fallback also fails.
func (o *Orchestrator) retrieve(ctx context.Context, plan supervisor.QueryPlan, query string, hints strategy.Hints) ([]ragcontext.RetrievedContext, strategy.Metadata, string) {
	chosen, ok := o.Strategies[string(plan.Strategy)]
	if !ok {
		o.log.Warnf("orchestrator: no strategy registered for %s, falling back to Compression", plan.Strategy)
		return o.fallback(ctx, query, hints, string(plan.Strategy), fmt.Errorf("no strategy registered for %s", plan.Strategy))
	}

	contexts, meta, err := o.runWithTimeout(ctx, chosen, query, hints)
	if err == nil {
		return contexts, meta, chosen.Name()
	}

	o.log.Warnf("orchestrator: strategy %s failed or timed out (%v), falling back to Compression", plan.Strategy, err)
	return o.fallback(ctx, query, hints, chosen.Name(), err)
}

// fallback runs a single degraded, no-rerank Compression pass, even when the
// originally chosen strategy was Compression itself. It tags the result
// "Compression (fallback)" and records the original attempt's failure
// alongside the fallback pass's own metadata, so retrieval_metadata reflects
// both attempts.
func (o *Orchestrator) fallback(ctx context.Context, query string, hints strategy.Hints, originalStrategy string, originalErr error) ([]ragcontext.RetrievedContext, strategy.Metadata, string) {
	if o.Metrics != nil {
		o.Metrics.RetrievalFallbacks.Inc()
	}

	originalWarning := fmt.Sprintf("original strategy %s failed: %v", originalStrategy, originalErr)

	compression, ok := o.Strategies[string(supervisor.Compression)]
	if !ok {
		return nil, strategy.Metadata{Warnings: []string{originalWarning, "no strategies available"}}, "none"
	}
	if c, ok := compression.(*strategy.Compression); ok {
		compression = c.NoRerank()
	}

	contexts, meta, err := o.runWithTimeout(ctx, compression, query, hints)
	if err != nil {
		o.log.Warnf("orchestrator: fallback Compression pass also failed (%v), proceeding with empty context list", err)
		return nil, strategy.Metadata{Warnings: []string{originalWarning, "fallback strategy failed: " + err.Error()}}, "Compression_Failed"
	}
	meta.Warnings = append([]string{originalWarning}, meta.Warnings...)
	return contexts, meta, "Compression (fallback)"
}

func (o *Orchestrator) runWithTimeout(ctx context.Context, s strategy.Strategy, query string, hints strategy.Hints) ([]ragcontext.RetrievedContext, strategy.Metadata, error) {
	timeout, ok := o.Timeouts[s.Name()]
	if !ok {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		contexts []ragcontext.RetrievedContext
		meta     strategy.Metadata
		err      error
	}
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		contexts, meta, err := s.Run(runCtx, query, hints, o.TopK)
		done <- result{contexts, meta, err}
	}()

	select {
	case r := <-done:
		o.recordStrategyMetrics(s.Name(), time.Since(started), len(r.contexts), r.err)
		return r.contexts, r.meta, r.err
	case <-runCtx.Done():
		o.recordStrategyMetrics(s.Name(), time.Since(started), 0, runCtx.Err())
		return nil, strategy.Metadata{}, runCtx.Err()
	}
}

// recordStrategyMetrics fulfills C9's metrics duty: every strategy
// invocation is counted by outcome, timed, and its result count observed.
func (o *Orchestrator) recordStrategyMetrics(name string, elapsed time.Duration, numResults int, err error) {
	if o.Metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	o.Metrics.StrategyRuns.WithLabelValues(name, outcome).Inc()
	o.Metrics.StrategyLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	if err == nil {
		o.Metrics.StrategyResults.WithLabelValues(name).Observe(float64(numResults))
	}
}

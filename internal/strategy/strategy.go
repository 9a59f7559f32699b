// Package strategy defines the single capability interface every retrieval
// strategy implements and provides the BM25, Compression and Ensemble
// strategies (WebSearch and LogSearch live in their own packages), following the same
// single-method-processor shape the teacher's A2A task processors use,
// generalized from "process a ticket event" to "retrieve evidence for a
// query".
package strategy

import (
	"context"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

// Hints carries the per-request signals a strategy may use to adjust its
// behavior (urgency, mostly).
type Hints struct {
	UserCanWait       bool
	ProductionIncident bool
}

// Metadata records what a strategy run actually did, surfaced in the HTTP
// response's retrieval_metadata field.
type Metadata struct {
	MethodsUsed      []string
	RerankerUsed     bool
	KeywordIndexUsed bool
	FilteringApplied bool
	Warnings         []string
	NumResults       int
}

// Strategy is the single capability every retrieval path satisfies: run a
// query and return ranked contexts plus a record of what happened. This is
// polymorphism over a capability set, not an inheritance hierarchy.
type Strategy interface {
	Name() string
	Run(ctx context.Context, query string, hints Hints, k int) ([]ragcontext.RetrievedContext, Metadata, error)
}

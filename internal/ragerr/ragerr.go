// Package ragerr defines the error taxonomy shared across the retrieval engine.
//
// Kinds are conceptual, not a class hierarchy: callers wrap an underlying error with
// one of the sentinels below and downstream code tests for a kind with errors.Is.
package ragerr

import (
	"errors"
	"fmt"
)

var (
	// InvalidInput marks a client-visible validation failure (400).
	InvalidInput = errors.New("invalid input")
	// UpstreamTransient marks a retryable network or provider error.
	UpstreamTransient = errors.New("transient upstream error")
	// UpstreamPermanent marks an auth/quota/schema failure that must not be retried.
	UpstreamPermanent = errors.New("permanent upstream error")
	// StrategyDegraded marks a sub-retrieval failure that does not fail the strategy.
	StrategyDegraded = errors.New("strategy degraded")
	// StrategyFailed marks every sub-retrieval in a strategy failing or exceeding budget.
	StrategyFailed = errors.New("strategy failed")
	// WorkflowFailed marks the orchestrator's fallback also failing.
	WorkflowFailed = errors.New("workflow failed")
	// Fatal marks a startup-time misconfiguration.
	Fatal = errors.New("fatal configuration error")
)

// Wrap attaches kind to err with a message, preserving errors.Is/As compatibility
// for both kind and err.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}

// Is reports whether err carries the given kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

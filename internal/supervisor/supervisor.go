// Package supervisor implements the routing policy (C7): a fixed rule table
// evaluated in order, with an optional LLM classifier consulted only when no
// rule beyond the default fires.
package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tuannvm/multiagent-rag/internal/llm"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// StrategyName names one of the five retrieval strategies a QueryPlan can
// select.
type StrategyName string

const (
	BM25        StrategyName = "BM25"
	Compression StrategyName = "Compression"
	Ensemble    StrategyName = "Ensemble"
	WebSearch   StrategyName = "WebSearch"
	LogSearch   StrategyName = "LogSearch"
)

// QueryPlan is the supervisor's decision for a single request.
type QueryPlan struct {
	Strategy  StrategyName
	Rationale string
	Urgent    bool
}

var (
	outageVocab     = regexp.MustCompile(`(?i)\b(down|outage|status page|latest|current)\b`)
	identifierRegex = regexp.MustCompile(`\b[A-Z]{2,}-\d+\b`)
	logVocab        = regexp.MustCompile(`(?i)\b(logs|exception|stack trace|error rate)\b`)
	errorVocab      = regexp.MustCompile(`(?i)\b(error|fail(ed|ing|ure)?|exception|crash(ed|ing)?)\b`)
)

// Supervisor evaluates the rule table and, when the table does not produce
// a decisive match, optionally consults an LLM classifier.
type Supervisor struct {
	Classifier llm.Client // nil disables the LLM fallback
	log        interface {
		Infof(string, ...interface{})
		Warnf(string, ...interface{})
	}
}

// New builds a supervisor. classifier may be nil to disable the LLM
// fallback entirely, making Decide a pure function of its inputs.
func New(classifier llm.Client) *Supervisor {
	return &Supervisor{Classifier: classifier, log: logging.Named("supervisor")}
}

// Decide applies the rule table in order and returns the first match. When
// no rule beyond the default fires and a classifier is configured, the
// classifier's choice is substituted; the classifier is advisory only and a
// failure or unparsable response silently keeps the rule-table default.
func (s *Supervisor) Decide(ctx context.Context, query string, userCanWait, productionIncident bool) QueryPlan {
	plan, ambiguous := s.applyRules(query, userCanWait, productionIncident)
	if !ambiguous || s.Classifier == nil {
		return plan
	}

	classified, ok := s.tryClassify(ctx, query, userCanWait, productionIncident)
	if !ok {
		return plan
	}
	classified.Rationale = truncateRationale(fmt.Sprintf("llm classifier selected %s (rule table was ambiguous)", classified.Strategy))
	return classified
}

// applyRules returns the rule-table decision and whether the decision fell
// through to the unconditional default (rule 6), which is the only case the
// LLM classifier may override.
func (s *Supervisor) applyRules(query string, userCanWait, productionIncident bool) (QueryPlan, bool) {
	urgent := productionIncident

	if outageVocab.MatchString(query) {
		return QueryPlan{Strategy: WebSearch, Rationale: "rule 1: outage/status vocabulary detected", Urgent: urgent}, false
	}
	if identifierRegex.MatchString(query) {
		return QueryPlan{Strategy: BM25, Rationale: "rule 2: ticket identifier pattern detected", Urgent: urgent}, false
	}
	if logVocab.MatchString(query) || (productionIncident && errorVocab.MatchString(query)) {
		return QueryPlan{Strategy: LogSearch, Rationale: "rule 3: log vocabulary or production incident with error vocabulary", Urgent: urgent}, false
	}
	if userCanWait {
		return QueryPlan{Strategy: Ensemble, Rationale: "rule 4: user_can_wait allows comprehensive retrieval", Urgent: urgent}, false
	}
	if productionIncident {
		return QueryPlan{Strategy: Compression, Rationale: "rule 5: production incident urgent default", Urgent: urgent}, false
	}
	return QueryPlan{Strategy: Compression, Rationale: "rule 6: default strategy", Urgent: urgent}, true
}

func (s *Supervisor) tryClassify(ctx context.Context, query string, userCanWait, productionIncident bool) (QueryPlan, bool) {
	prompt := fmt.Sprintf(classifierPrompt, query, userCanWait, productionIncident)
	raw, err := s.Classifier.Complete(ctx, prompt)
	if err != nil {
		s.log.Warnf("supervisor: classifier call failed, keeping rule-table default: %v", err)
		return QueryPlan{}, false
	}
	strategy, ok := parseStrategy(raw)
	if !ok {
		s.log.Warnf("supervisor: classifier response unparsable, keeping rule-table default")
		return QueryPlan{}, false
	}
	return QueryPlan{Strategy: strategy, Urgent: productionIncident}, true
}

const classifierPrompt = `Choose exactly one retrieval strategy for this query: BM25, Compression, Ensemble, WebSearch, or LogSearch.
Query: %q
user_can_wait=%v production_incident=%v
Respond with only the strategy name, nothing else.`

func parseStrategy(raw string) (StrategyName, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	for _, candidate := range []StrategyName{BM25, Compression, Ensemble, WebSearch, LogSearch} {
		if strings.Contains(trimmed, strings.ToUpper(string(candidate))) {
			return candidate, true
		}
	}
	return "", false
}

func truncateRationale(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

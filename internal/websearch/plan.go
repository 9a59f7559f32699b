// Package websearch implements the web-search strategy (C5): an LLM-planned
// set of refined queries executed concurrently against an external search
// provider.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tuannvm/multiagent-rag/internal/llm"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// Classification is the planner's query-type judgment.
type Classification string

const (
	StatusCheck    Classification = "status_check"
	Troubleshooting Classification = "troubleshooting"
	General        Classification = "general"
)

// Priority is the planner's urgency judgment.
type Priority string

const (
	Urgent Priority = "urgent"
	Normal Priority = "normal"
)

// Plan is the planner's structured output.
type Plan struct {
	Classification Classification `json:"classification"`
	Priority       Priority       `json:"priority"`
	Searches       []string       `json:"searches"`
}

const plannerPrompt = `You are planning a web search to help answer an engineering question.
Query: %q
user_can_wait=%v production_incident=%v

Classify the query as one of: status_check, troubleshooting, general.
Assign a priority of urgent or normal.
Produce up to %d refined, concrete web search strings.

Respond with ONLY a JSON object of the shape:
{"classification": "...", "priority": "...", "searches": ["...", "..."]}`

const plannerRetryPrompt = `Your previous response could not be parsed as JSON. Respond with ONLY the JSON object, no prose, no markdown fences.
Query: %q
Shape: {"classification": "status_check|troubleshooting|general", "priority": "urgent|normal", "searches": ["..."]}`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Planner produces a search plan, falling back to a documented default on
// persistent parse failure so a malformed LLM response never fails the
// strategy.
type Planner struct {
	LLM         llm.Client
	MaxSearches int
}

// NewPlanner builds a planner bounded to maxSearches refined queries.
func NewPlanner(client llm.Client, maxSearches int) *Planner {
	if maxSearches <= 0 {
		maxSearches = 5
	}
	return &Planner{LLM: client, MaxSearches: maxSearches}
}

// Plan asks the LLM for a plan, retries once with a stricter prompt on parse
// failure, and falls back to {classification: general, priority: normal,
// searches: [query]} if both attempts fail.
func (p *Planner) Plan(ctx context.Context, query string, userCanWait, productionIncident bool) Plan {
	log := logging.Named("websearch.planner")

	if p.LLM == nil {
		return defaultPlan(query)
	}

	prompt := fmt.Sprintf(plannerPrompt, query, userCanWait, productionIncident, p.MaxSearches)
	if plan, ok := p.tryPlan(ctx, prompt); ok {
		return capSearches(plan, p.MaxSearches)
	}

	log.Warnf("websearch: planner produced malformed output, retrying with stricter prompt")
	retryPrompt := fmt.Sprintf(plannerRetryPrompt, query)
	if plan, ok := p.tryPlan(ctx, retryPrompt); ok {
		return capSearches(plan, p.MaxSearches)
	}

	log.Warnf("websearch: planner failed twice, using default plan")
	return defaultPlan(query)
}

func (p *Planner) tryPlan(ctx context.Context, prompt string) (Plan, bool) {
	raw, err := p.LLM.Complete(ctx, prompt)
	if err != nil {
		return Plan{}, false
	}
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return Plan{}, false
	}
	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return Plan{}, false
	}
	if plan.Classification == "" || len(plan.Searches) == 0 {
		return Plan{}, false
	}
	return plan, true
}

func defaultPlan(query string) Plan {
	return Plan{Classification: General, Priority: Normal, Searches: []string{query}}
}

func capSearches(plan Plan, max int) Plan {
	if len(plan.Searches) > max {
		plan.Searches = plan.Searches[:max]
	}
	return plan
}

// extractJSON takes the span from the first '{' to the last '}' and checks
// that it parses as JSON, matching the scan-then-validate helper used
// elsewhere in the engine for parsing LLM output.
func extractJSON(text string) (string, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return "", fmt.Errorf("websearch: no JSON object found in %q", strings.TrimSpace(text))
	}
	var probe interface{}
	if err := json.Unmarshal([]byte(match), &probe); err != nil {
		return "", fmt.Errorf("websearch: candidate JSON invalid: %w", err)
	}
	return match, nil
}

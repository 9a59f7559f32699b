// Package logsearch implements the log-search strategy (C6): an LLM-planned
// set of structured log queries executed against a GCP Cloud Logging or
// Splunk backend, scored by severity and deduplicated by normalized message.
package logsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tuannvm/multiagent-rag/internal/llm"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// SearchType names the kind of log search a single plan entry requests.
type SearchType string

const (
	ExceptionSearch   SearchType = "exception_search"
	ProductionIssue   SearchType = "production_issue"
	GeneralSearch     SearchType = "general_search"
	TimeRangeAnalysis SearchType = "time_range_analysis"
)

// Search is a single planned log query.
type Search struct {
	Query          string     `json:"query"`
	Type           SearchType `json:"type"`
	TimeRange      string     `json:"time_range"`
	ExceptionTypes []string   `json:"exception_types,omitempty"`
	MaxResults     int        `json:"max_results"`
}

// Plan is the planner's structured output: a named strategy and the
// concrete searches to execute.
type Plan struct {
	Strategy  string   `json:"strategy"`
	Reasoning string   `json:"reasoning"`
	Searches  []Search `json:"searches"`
}

const plannerPrompt = `You are a log analysis expert. Analyze the following query and determine the best log search strategy.

Query: %q
Production Incident: %v

Available log search strategies:
1. "exception_search" - search for specific exceptions (%s)
2. "production_issue" - search for production issues based on error context
3. "general_search" - general log search with specific terms
4. "time_range_analysis" - focus on specific time ranges for incident analysis

For production incidents, prioritize exception searches and recent time ranges.
Generate 1-3 specific log search queries.

Respond with ONLY a JSON object of the shape:
{"strategy": "...", "reasoning": "...", "searches": [{"query": "...", "type": "...", "time_range": "-1h", "exception_types": ["..."], "max_results": 50}]}`

const plannerRetryPrompt = `Your previous response could not be parsed as JSON. Respond with ONLY the JSON object, no prose, no markdown fences.
Query: %q
Shape: {"strategy": "...", "reasoning": "...", "searches": [{"query": "...", "type": "exception_search|production_issue|general_search|time_range_analysis", "time_range": "-1h", "max_results": 50}]}`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

var errorIndicators = []string{
	"error", "exception", "failed", "timeout", "connection", "certificate",
	"disk space", "memory", "dead letter", "500", "502", "503", "504",
}

// Planner produces a log search plan, falling back to a rule-based default
// when the LLM is unavailable or its output cannot be parsed.
type Planner struct {
	LLM                llm.Client
	MaxSearches        int
	ExceptionCatalogue []string
}

// NewPlanner builds a planner bounded to maxSearches queries, offering the
// exception catalogue to the LLM as the list of recognized exception types.
func NewPlanner(client llm.Client, maxSearches int, exceptionCatalogue []string) *Planner {
	if maxSearches <= 0 {
		maxSearches = 5
	}
	if len(exceptionCatalogue) == 0 {
		exceptionCatalogue = []string{"certificate-expiry", "http-5xx", "disk-space-exceeded", "dead-letter-queue-exceeded"}
	}
	return &Planner{LLM: client, MaxSearches: maxSearches, ExceptionCatalogue: exceptionCatalogue}
}

// Plan asks the LLM for a strategy, retries once with a stricter prompt on
// parse failure, and falls back to a rule-based strategy keyed on error
// vocabulary and production_incident if both attempts fail.
func (p *Planner) Plan(ctx context.Context, query string, productionIncident bool) Plan {
	log := logging.Named("logsearch.planner")

	if p.LLM != nil {
		prompt := fmt.Sprintf(plannerPrompt, query, productionIncident, strings.Join(p.ExceptionCatalogue, ", "))
		if plan, ok := p.tryPlan(ctx, prompt, productionIncident); ok {
			return p.capAndDefault(plan, productionIncident)
		}

		log.Warnf("logsearch: planner produced malformed output, retrying with stricter prompt")
		retryPrompt := fmt.Sprintf(plannerRetryPrompt, query)
		if plan, ok := p.tryPlan(ctx, retryPrompt, productionIncident); ok {
			return p.capAndDefault(plan, productionIncident)
		}

		log.Warnf("logsearch: planner failed twice, using fallback strategy")
	}

	return fallbackPlan(query, productionIncident)
}

func (p *Planner) tryPlan(ctx context.Context, prompt string, productionIncident bool) (Plan, bool) {
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
	if len(plan.Searches) == 0 {
		return Plan{}, false
	}
	return plan, true
}

func (p *Planner) capAndDefault(plan Plan, productionIncident bool) Plan {
	if len(plan.Searches) > p.MaxSearches {
		plan.Searches = plan.Searches[:p.MaxSearches]
	}
	defaultTimeRange := "-1h"
	defaultMaxResults := 50
	if productionIncident {
		defaultTimeRange = "-72h"
		defaultMaxResults = 30
	}
	for i := range plan.Searches {
		if plan.Searches[i].TimeRange == "" {
			plan.Searches[i].TimeRange = defaultTimeRange
		}
		if plan.Searches[i].MaxResults == 0 {
			plan.Searches[i].MaxResults = defaultMaxResults
		}
		if plan.Searches[i].Type == "" {
			plan.Searches[i].Type = GeneralSearch
		}
	}
	return plan
}

// fallbackPlan applies the rule-based strategy: production incidents with
// error vocabulary in the query get an exception search plus an
// ERROR-prefixed production_issue search; production incidents without error vocabulary get a
// broad ERROR-OR-WARN search; everything else gets a single general search
// over a wider time window.
func fallbackPlan(query string, productionIncident bool) Plan {
	lower := strings.ToLower(query)
	hasErrorIndicator := false
	for _, ind := range errorIndicators {
		if strings.Contains(lower, ind) {
			hasErrorIndicator = true
			break
		}
	}

	switch {
	case productionIncident && hasErrorIndicator:
		return Plan{
			Strategy:  "production_exception_search",
			Reasoning: "production incident with error indicators detected",
			Searches: []Search{
				{Query: query, Type: ExceptionSearch, TimeRange: "-72h", MaxResults: 30},
				{Query: "ERROR " + query, Type: ProductionIssue, TimeRange: "-72h", MaxResults: 20},
			},
		}
	case productionIncident:
		return Plan{
			Strategy:  "production_general_search",
			Reasoning: "production incident requiring broad log analysis",
			Searches: []Search{
				{Query: "ERROR OR WARN " + query, Type: GeneralSearch, TimeRange: "-72h", MaxResults: 30},
			},
		}
	default:
		return Plan{
			Strategy:  "general_analysis",
			Reasoning: "general log analysis query",
			Searches: []Search{
				{Query: query, Type: GeneralSearch, TimeRange: "-168h", MaxResults: 50},
			},
		}
	}
}

// ParseTimeRange converts a relative time-range string such as "-1h" or
// "-72h" into a concrete window. Windows are doubled backward and extended
// 12h forward to tolerate timezone skew between the caller and the backend,
// matching the original agent's tolerance.
func ParseTimeRange(timeRange string, now time.Time) (start, end time.Time, ok bool) {
	if !strings.HasPrefix(timeRange, "-") {
		return time.Time{}, time.Time{}, false
	}
	body := timeRange[1:]
	switch {
	case strings.HasSuffix(body, "h"):
		var hours int
		if _, err := fmt.Sscanf(body, "%dh", &hours); err != nil {
			return time.Time{}, time.Time{}, false
		}
		return now.Add(-time.Duration(hours*2) * time.Hour), now.Add(12 * time.Hour), true
	case strings.HasSuffix(body, "d"):
		var days int
		if _, err := fmt.Sscanf(body, "%dd", &days); err != nil {
			return time.Time{}, time.Time{}, false
		}
		return now.Add(-time.Duration(days*2*24) * time.Hour), now.Add(12 * time.Hour), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

func extractJSON(text string) (string, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return "", fmt.Errorf("logsearch: no JSON object found in %q", strings.TrimSpace(text))
	}
	var probe interface{}
	if err := json.Unmarshal([]byte(match), &probe); err != nil {
		return "", fmt.Errorf("logsearch: candidate JSON invalid: %w", err)
	}
	return match, nil
}

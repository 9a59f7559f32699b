package logsearch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
	"github.com/tuannvm/multiagent-rag/internal/strategy"
)

// Entry is a single raw log line returned by a Backend.
type Entry struct {
	Message      string
	Timestamp    string
	Level        string // TRACE/DEBUG/INFO/WARN/ERROR/FATAL, or UNKNOWN
	Logger       string
	Thread       string
	Source       string
	Severity     string
	LogName      string
	ResourceType string
}

// Backend executes a single planned Search against a concrete log store.
// GCP Cloud Logging and Splunk both implement it; a third backend can be
// added without touching the strategy or planner.
type Backend interface {
	Name() string
	Execute(ctx context.Context, search Search) ([]Entry, error)
}

// Strategy implements the C6 log-search capability.
type Strategy struct {
	Planner *Planner
	Backend Backend
	Fanout  int
	log     interface {
		Warnf(string, ...interface{})
		Infof(string, ...interface{})
	}
}

// New builds the log-search strategy. A nil backend (e.g. GCP credentials
// not configured) makes Run report a degraded empty result rather than an
// error, matching the original agent's unavailable-backend branch.
func New(planner *Planner, backend Backend, fanout int) *Strategy {
	if fanout <= 0 {
		fanout = 3
	}
	return &Strategy{Planner: planner, Backend: backend, Fanout: fanout, log: logging.Named("strategy.logsearch")}
}

func (s *Strategy) Name() string { return "LogSearch" }

func (s *Strategy) Run(ctx context.Context, query string, hints strategy.Hints, k int) ([]ragcontext.RetrievedContext, strategy.Metadata, error) {
	if s.Backend == nil {
		s.log.Warnf("logsearch: backend unavailable, returning empty result")
		return nil, strategy.Metadata{Warnings: []string{"logsearch backend unavailable"}}, nil
	}

	plan := s.Planner.Plan(ctx, query, hints.ProductionIncident)

	p := pool.NewWithResults[[]Entry]().WithContext(ctx).WithMaxGoroutines(s.Fanout)
	var warnings []string
	searchTypes := make(map[int]SearchType)
	for i, search := range plan.Searches {
		searchTypes[i] = search.Type
		search := search
		p.Go(func(ctx context.Context) ([]Entry, error) {
			entries, err := s.Backend.Execute(ctx, search)
			if err != nil {
				return nil, nil // individual search failures don't fail the strategy
			}
			return entries, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, strategy.Metadata{Warnings: warnings}, ragerr.Wrap(ragerr.StrategyFailed, "logsearch: execution pool failed", err)
	}

	var rawHits []ragcontext.RawHit
	for i, entries := range results {
		searchType := searchTypes[i]
		for _, e := range entries {
			rawHits = append(rawHits, ragcontext.RawHit{
				Content: e.Message,
				Metadata: map[string]string{
					"timestamp":     e.Timestamp,
					"level":         e.Level,
					"logger":        e.Logger,
					"thread":        e.Thread,
					"service":       e.Source,
					"search_type":   string(searchType),
					"backend":       s.Backend.Name(),
					"severity":      e.Severity,
					"log_name":      e.LogName,
					"resource_type": e.ResourceType,
				},
				RawScore: relevanceScore(e.Message, searchType, e.Level),
				Kind:     ragcontext.PrenormalizedHit,
			})
		}
	}

	deduped := dedupeByNormalizedMessage(rawHits)
	out := ragcontext.Normalize(deduped, fmt.Sprintf("log_%s", s.Backend.Name()))
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	limit := k
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	out = ragcontext.TopK(out, limit)

	return out, strategy.Metadata{
		MethodsUsed: []string{plan.Strategy},
		Warnings:    warnings,
		NumResults:  len(out),
	}, nil
}

// relevanceScore mirrors the original agent's severity-plus-type-boost
// formula: a 0.5 base, boosted by log level, further boosted when the
// message looks like the search type it was found under, capped at 1.0.
func relevanceScore(message string, searchType SearchType, level string) float64 {
	score := 0.5 + levelBoost(level)

	if searchType == ExceptionSearch && containsAny(message, "Exception", "Error", "Failed", "Timeout") {
		score += 0.2
	}
	if searchType == ProductionIssue && containsAnyFold(message, "certificate", "expired", "500", "502", "503", "504", "disk space", "dead letter") {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func levelBoost(level string) float64 {
	switch level {
	case "ERROR":
		return 0.3
	case "WARN":
		return 0.2
	case "FATAL":
		return 0.4
	case "INFO":
		return 0.1
	default: // DEBUG, TRACE, UNKNOWN
		return 0.0
	}
}

func containsAny(s string, candidates ...string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

func containsAnyFold(s string, candidates ...string) bool {
	lower := strings.ToLower(s)
	for _, c := range candidates {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

var (
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
	digitsPattern     = regexp.MustCompile(`\d+`)
)

// dedupeByNormalizedMessage strips timestamps and digit runs before hashing
// so two occurrences of the same log line at different times collapse to
// one entry, keeping the first occurrence in input order (searches in the
// order their results arrive, each in its backend's result order); the
// score sort happens afterwards in the caller.
func dedupeByNormalizedMessage(hits []ragcontext.RawHit) []ragcontext.RawHit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]ragcontext.RawHit, 0, len(hits))
	for _, h := range hits {
		normalized := timestampPattern.ReplaceAllString(h.Content, "")
		normalized = digitsPattern.ReplaceAllString(normalized, "NUM")
		normalized = strings.TrimSpace(normalized)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, h)
	}
	return out
}

var levelPattern = regexp.MustCompile(`\b(TRACE|DEBUG|INFO|WARN|ERROR|FATAL)\b`)

// ExtractLevel pulls a standard log level token out of a raw log line,
// used by backends whose native records don't carry a structured level
// field.
func ExtractLevel(line string) string {
	if m := levelPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return "UNKNOWN"
}

package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tuannvm/multiagent-rag/internal/llm"
)

// LLMParaphraser generates alternate phrasings of a query with the fast LLM
// tier, feeding the ensemble's multi-query-expansion sub-retrieval.
type LLMParaphraser struct {
	LLM llm.Client
}

// NewLLMParaphraser builds a paraphraser over the given LLM client.
func NewLLMParaphraser(client llm.Client) *LLMParaphraser {
	return &LLMParaphraser{LLM: client}
}

const paraphrasePrompt = `Generate %d alternate phrasings of this query that preserve its meaning but use different wording or emphasis.

Query: %q

Respond with ONLY a JSON array of strings, e.g. ["...", "..."]`

var paraphraseArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// Paraphrase returns up to n alternate phrasings. Returns an error (rather
// than a partial or default list) on any LLM or parse failure, since the
// ensemble treats this sub-retrieval as optional and simply skips it.
func (p *LLMParaphraser) Paraphrase(ctx context.Context, query string, n int) ([]string, error) {
	raw, err := p.LLM.Complete(ctx, fmt.Sprintf(paraphrasePrompt, n, query))
	if err != nil {
		return nil, fmt.Errorf("strategy: paraphraser LLM call failed: %w", err)
	}

	match := paraphraseArrayPattern.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("strategy: paraphraser response had no JSON array")
	}
	var phrasings []string
	if err := json.Unmarshal([]byte(match), &phrasings); err != nil {
		return nil, fmt.Errorf("strategy: paraphraser response invalid JSON: %w", err)
	}
	if len(phrasings) > n {
		phrasings = phrasings[:n]
	}
	return phrasings, nil
}

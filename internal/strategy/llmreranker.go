package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/llm"
)

// LLMReranker reorders candidates with the fast LLM tier, prompting for a
// JSON relevance score per document rather than a full document rewrite.
type LLMReranker struct {
	LLM llm.Client
}

// NewLLMReranker builds a reranker over the given LLM client.
func NewLLMReranker(client llm.Client) *LLMReranker {
	return &LLMReranker{LLM: client}
}

const rerankPrompt = `Score how relevant each numbered document is to the query, from 0.0 (irrelevant) to 1.0 (highly relevant).

Query: %q

Documents:
%s

Respond with ONLY a JSON array of scores in document order, e.g. [0.9, 0.2, 0.6]`

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// Rerank scores every candidate with a single LLM call and returns the top k
// by the new score. On any failure (LLM error, unparsable or
// mismatched-length response) it returns no documents and an error so the
// caller can fall back to its own raw-score ordering.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []ragcontext.RetrievedContext, k int) ([]ragcontext.RetrievedContext, error) {
	if len(docs) == 0 {
		return docs, nil
	}

	var listing strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&listing, "%d. %s\n", i+1, truncate(d.Content, 400))
	}

	raw, err := r.LLM.Complete(ctx, fmt.Sprintf(rerankPrompt, query, listing.String()))
	if err != nil {
		return nil, fmt.Errorf("strategy: reranker LLM call failed: %w", err)
	}

	scores, err := parseScores(raw, len(docs))
	if err != nil {
		return nil, err
	}

	reranked := make([]ragcontext.RetrievedContext, len(docs))
	copy(reranked, docs)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}

	return ragcontext.TopK(reranked, k), nil
}

func parseScores(raw string, expected int) ([]float64, error) {
	match := jsonArrayPattern.FindString(raw)
	if match == "" {
		return nil, fmt.Errorf("strategy: reranker response had no JSON array")
	}
	var scores []float64
	if err := json.Unmarshal([]byte(match), &scores); err != nil {
		return nil, fmt.Errorf("strategy: reranker response invalid JSON: %w", err)
	}
	if len(scores) != expected {
		return nil, fmt.Errorf("strategy: reranker returned %d scores for %d documents", len(scores), expected)
	}
	return scores, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package writer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

func sampleContexts() []ragcontext.RetrievedContext {
	return []ragcontext.RetrievedContext{
		{
			Content:  "Title: Login fails with 500\n\nDescription: Gateway times out under load",
			Metadata: map[string]string{"key": "BUGS-1", "title": "Login fails with 500"},
			Source:   "bm25",
			Score:    0.9,
		},
		{
			Content:  "Title: Release notes v2\n\nDescription: Adds retry logic",
			Metadata: map[string]string{"key": "REL-3"},
			Source:   "bm25",
			Score:    0.5,
		},
	}
}

func TestComposeNoContextsStatesSoAndSuggestsReformulations(t *testing.T) {
	w := New(nil)
	result := w.Compose(context.Background(), "why is prod down", "WebSearch", true, nil)
	assert.Contains(t, strings.ToLower(result.Answer), "couldn't find")
	assert.Empty(t, result.References)
}

func TestComposeProductionIncidentLeadsWithActionableItem(t *testing.T) {
	w := New(nil)
	result := w.Compose(context.Background(), "login failing", "Compression", true, sampleContexts())
	assert.True(t, strings.HasPrefix(result.Answer, "Immediate action:"))
}

func TestComposeNonIncidentListsAllContexts(t *testing.T) {
	w := New(nil)
	result := w.Compose(context.Background(), "release notes", "BM25", false, sampleContexts())
	assert.Contains(t, result.Answer, "Login fails with 500")
	assert.Contains(t, result.Answer, "Release notes v2")
}

func TestExtractReferencesDedupsByKeyAndDerivesTitle(t *testing.T) {
	w := New(nil)
	result := w.Compose(context.Background(), "q", "BM25", false, sampleContexts())
	require.Len(t, result.References, 2)
	assert.Equal(t, "BUGS-1", result.References[0].Key)
	assert.Equal(t, "Login fails with 500", result.References[0].Title)
	assert.Equal(t, "Release notes v2", result.References[1].Title)
}

func TestExtractReferencesSkipsContextsWithoutKey(t *testing.T) {
	w := New(nil)
	contexts := []ragcontext.RetrievedContext{
		{Content: "Title: Unkeyed\n\nDescription: d", Metadata: map[string]string{}},
	}
	result := w.Compose(context.Background(), "q", "BM25", false, contexts)
	assert.Empty(t, result.References)
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestComposeUsesLLMWhenAvailable(t *testing.T) {
	w := New(&fakeLLM{response: "BUGS-1 is the culprit here."})
	result := w.Compose(context.Background(), "login failing", "Compression", false, sampleContexts())
	assert.Equal(t, "BUGS-1 is the culprit here.", result.Answer)
}

func TestComposeFallsBackToDeterministicAnswerOnLLMFailure(t *testing.T) {
	w := New(&fakeLLM{err: errors.New("llm down")})
	result := w.Compose(context.Background(), "login failing", "Compression", true, sampleContexts())
	assert.True(t, strings.HasPrefix(result.Answer, "Immediate action:"))
}

func TestFormatContextsForLLMUsesKeyPrefix(t *testing.T) {
	out := formatContextsForLLM(sampleContexts())
	assert.Contains(t, out, "[BUGS-1]")
	assert.Contains(t, out, "[REL-3]")
}

func TestComposeNeutralizesHallucinatedTicketKeys(t *testing.T) {
	w := New(&fakeLLM{response: "BUGS-1 is the culprit, related to HBASE-9999 from last quarter."})
	result := w.Compose(context.Background(), "login failing", "Compression", false, sampleContexts())
	assert.Contains(t, result.Answer, "BUGS-1")
	assert.NotContains(t, result.Answer, "HBASE-9999")
}

func TestNeutralizeUncitedKeysKeepsKnownKeys(t *testing.T) {
	refs := []Reference{{Key: "BUGS-1", Title: "x"}}
	out := neutralizeUncitedKeys("See BUGS-1 and REL-3 for details.", refs)
	assert.Contains(t, out, "BUGS-1")
	assert.NotContains(t, out, "REL-3")
}

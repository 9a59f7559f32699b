package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

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

func sampleDocs() []ragcontext.RetrievedContext {
	return []ragcontext.RetrievedContext{
		{Content: "doc one", Score: 0.1},
		{Content: "doc two", Score: 0.9},
	}
}

func TestLLMRerankerReordersByScore(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.2, 0.95]"})
	out, err := r.Rerank(context.Background(), "q", sampleDocs(), 2)
	require.NoError(t, err)
	assert.Equal(t, "doc two", out[0].Content)
	assert.InDelta(t, 0.95, out[0].Score, 1e-9)
}

func TestLLMRerankerErrorsOnMismatchedScoreCount(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[0.2]"})
	_, err := r.Rerank(context.Background(), "q", sampleDocs(), 2)
	require.Error(t, err)
}

func TestLLMRerankerPropagatesLLMError(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{err: errors.New("llm down")})
	_, err := r.Rerank(context.Background(), "q", sampleDocs(), 2)
	require.Error(t, err)
}

func TestLLMRerankerNoopOnEmptyInput(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "[]"})
	out, err := r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLLMParaphraserReturnsPhrasings(t *testing.T) {
	p := NewLLMParaphraser(&fakeLLM{response: `["alt one", "alt two", "alt three"]`})
	out, err := p.Paraphrase(context.Background(), "original query", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"alt one", "alt two", "alt three"}, out)
}

func TestLLMParaphraserCapsAtN(t *testing.T) {
	p := NewLLMParaphraser(&fakeLLM{response: `["a", "b", "c", "d"]`})
	out, err := p.Paraphrase(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLLMParaphraserErrorsOnLLMFailure(t *testing.T) {
	p := NewLLMParaphraser(&fakeLLM{err: errors.New("llm down")})
	_, err := p.Paraphrase(context.Background(), "q", 3)
	require.Error(t, err)
}

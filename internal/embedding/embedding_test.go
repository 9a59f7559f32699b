package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLogger struct{}

func (stubLogger) Warnf(string, ...interface{}) {}

type fakeEmbedder struct {
	calls     int
	failUntil int
	err       error
	vec       []float32
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func newTestClient(f *fakeEmbedder) *Client {
	return &Client{embedder: f, dim: 3, log: stubLogger{}}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	c := newTestClient(&fakeEmbedder{})
	_, err := c.Embed(context.Background(), "")
	require.Error(t, err)
}

func TestEmbedSucceedsOnFirstTry(t *testing.T) {
	f := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	c := newTestClient(f)
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Vector{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 1, f.calls)
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	f := &fakeEmbedder{vec: []float32{1}, failUntil: 2, err: errors.New("connection reset")}
	c := newTestClient(f)
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Vector{1}, v)
	assert.Equal(t, 3, f.calls)
}

func TestEmbedDoesNotRetryAuthFailure(t *testing.T) {
	f := &fakeEmbedder{err: errors.New("401 invalid_api_key")}
	c := newTestClient(f)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestEmbedBatchFailsOnFirstError(t *testing.T) {
	f := &fakeEmbedder{err: errors.New("401 invalid_api_key")}
	c := newTestClient(f)
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

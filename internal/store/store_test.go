package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

func sampleDocs() map[Collection][]Document {
	return map[Collection][]Document{
		Bugs: {
			{Key: "BUGS-1", Title: "Login fails with 500", Description: "Users cannot log in after deploy", Project: "BUGS"},
			{Key: "BUGS-2", Title: "Slow dashboard", Description: "Dashboard takes 10s to load", Project: "BUGS"},
		},
		Releases: {
			{Key: "REL-1", Title: "2.0 release notes", Description: "login flow rewritten", Project: "REL"},
		},
	}
}

func TestMemoryStoreKeywordSearchSubstringMatch(t *testing.T) {
	s := NewMemoryStore(sampleDocs(), nil)
	out, err := s.KeywordSearch(context.Background(), Bugs, "log in", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].Score)
	assert.Contains(t, out[0].Content, "Login fails with 500")
}

func TestMemoryStoreKeywordSearchRespectsFilters(t *testing.T) {
	s := NewMemoryStore(sampleDocs(), nil)
	out, err := s.KeywordSearch(context.Background(), Bugs, "login", 10, Filters{Project: "REL"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryStoreVectorSearchWithoutEmbedderFallsBackToSubstring(t *testing.T) {
	s := NewMemoryStore(sampleDocs(), nil)
	out, err := s.VectorSearch(context.Background(), Bugs, "dashboard", 10, 0.1, Filters{})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestMemoryStoreHybridSearchNeverErrorsOnEmptyCollection(t *testing.T) {
	s := NewMemoryStore(map[Collection][]Document{}, nil)
	out, err := s.HybridSearch(context.Background(), Bugs, "anything", 10, 0.1, 0.7, 0.3, Filters{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

type fakeStore struct {
	failVector, failKeyword, failHybrid, failConn bool
	tag                                           string
}

func (f *fakeStore) result(tag string) []ragcontext.RetrievedContext {
	return []ragcontext.RetrievedContext{{Content: tag, Score: 1, Source: tag}}
}

func (f *fakeStore) VectorSearch(ctx context.Context, c Collection, q string, k int, th float64, fl Filters) ([]ragcontext.RetrievedContext, error) {
	if f.failVector {
		return nil, errors.New("vector search down")
	}
	return f.result(f.tag + "_vector"), nil
}

func (f *fakeStore) KeywordSearch(ctx context.Context, c Collection, q string, k int, fl Filters) ([]ragcontext.RetrievedContext, error) {
	if f.failKeyword {
		return nil, errors.New("keyword search down")
	}
	return f.result(f.tag + "_keyword"), nil
}

func (f *fakeStore) HybridSearch(ctx context.Context, c Collection, q string, k int, th, wv, wk float64, fl Filters) ([]ragcontext.RetrievedContext, error) {
	if f.failHybrid {
		return nil, errors.New("hybrid search down")
	}
	return f.result(f.tag + "_hybrid"), nil
}

func (f *fakeStore) TestConnection(ctx context.Context) error {
	if f.failConn {
		return errors.New("connection refused")
	}
	return nil
}

func TestAutoStoreDemotesToFallbackOnPrimaryError(t *testing.T) {
	primary := &fakeStore{tag: "primary", failVector: true}
	fallback := &fakeStore{tag: "fallback"}
	auto := NewAutoStore(primary, fallback)

	out, err := auto.VectorSearch(context.Background(), Bugs, "q", 5, 0.1, Filters{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "fallback_vector", out[0].Content)
}

func TestAutoStoreStaysOnPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeStore{tag: "primary"}
	fallback := &fakeStore{tag: "fallback"}
	auto := NewAutoStore(primary, fallback)

	out, err := auto.KeywordSearch(context.Background(), Bugs, "q", 5, Filters{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "primary_keyword", out[0].Content)
}

func TestFuseVectorKeywordAppliesConfiguredWeights(t *testing.T) {
	vector := []ragcontext.RetrievedContext{{Content: "shared", Score: 1.0}}
	keyword := []ragcontext.RetrievedContext{{Content: "shared", Score: 1.0}}
	out := fuseVectorKeyword(vector, keyword, 5, 0.7, 0.3)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
}

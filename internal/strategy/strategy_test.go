package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/store"
)

type fakeStore struct {
	keywordByCollection map[store.Collection][]ragcontext.RetrievedContext
	vectorByCollection  map[store.Collection][]ragcontext.RetrievedContext
	failKeyword         map[store.Collection]bool
	failVector          map[store.Collection]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keywordByCollection: map[store.Collection][]ragcontext.RetrievedContext{},
		vectorByCollection:  map[store.Collection][]ragcontext.RetrievedContext{},
		failKeyword:         map[store.Collection]bool{},
		failVector:          map[store.Collection]bool{},
	}
}

func (f *fakeStore) VectorSearch(ctx context.Context, c store.Collection, q string, k int, th float64, fl store.Filters) ([]ragcontext.RetrievedContext, error) {
	if f.failVector[c] {
		return nil, errors.New("vector down")
	}
	return f.vectorByCollection[c], nil
}

func (f *fakeStore) KeywordSearch(ctx context.Context, c store.Collection, q string, k int, fl store.Filters) ([]ragcontext.RetrievedContext, error) {
	if f.failKeyword[c] {
		return nil, errors.New("keyword down")
	}
	return f.keywordByCollection[c], nil
}

func (f *fakeStore) HybridSearch(ctx context.Context, c store.Collection, q string, k int, th, wv, wk float64, fl store.Filters) ([]ragcontext.RetrievedContext, error) {
	return nil, nil
}

func (f *fakeStore) TestConnection(ctx context.Context) error { return nil }

func TestBM25FusesBothCollectionsEqually(t *testing.T) {
	s := newFakeStore()
	s.keywordByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "bug hit", Score: 1.0}}
	s.keywordByCollection[store.Releases] = []ragcontext.RetrievedContext{{Content: "release hit", Score: 0.5}}

	bm25 := NewBM25(s)
	out, meta, err := bm25.Run(context.Background(), "HBASE-123", Hints{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, meta.KeywordIndexUsed)
}

func TestBM25FailsOnlyWhenBothCollectionsFail(t *testing.T) {
	s := newFakeStore()
	s.failKeyword[store.Bugs] = true
	s.failKeyword[store.Releases] = true

	bm25 := NewBM25(s)
	_, _, err := bm25.Run(context.Background(), "q", Hints{}, 10)
	require.Error(t, err)
}

func TestBM25DegradesOnSingleCollectionFailure(t *testing.T) {
	s := newFakeStore()
	s.failKeyword[store.Bugs] = true
	s.keywordByCollection[store.Releases] = []ragcontext.RetrievedContext{{Content: "release hit", Score: 1.0}}

	bm25 := NewBM25(s)
	out, meta, err := bm25.Run(context.Background(), "q", Hints{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, meta.Warnings, 1)
}

func TestCompressionWithoutRerankerKeepsRawVectorScore(t *testing.T) {
	s := newFakeStore()
	s.vectorByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "vec hit", Score: 0.8}}

	c := NewCompression(s, nil, true)
	out, meta, err := c.Run(context.Background(), "q", Hints{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, meta.RerankerUsed)
}

type fakeReranker struct {
	err error
	out []ragcontext.RetrievedContext
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, docs []ragcontext.RetrievedContext, k int) ([]ragcontext.RetrievedContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestCompressionUsesRerankerWhenAvailable(t *testing.T) {
	s := newFakeStore()
	s.vectorByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "vec hit", Score: 0.8}}

	reranked := []ragcontext.RetrievedContext{{Content: "reranked hit", Score: 0.99}}
	c := NewCompression(s, &fakeReranker{out: reranked}, true)
	out, meta, err := c.Run(context.Background(), "q", Hints{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, meta.RerankerUsed)
	assert.Equal(t, "reranked hit", out[0].Content)
}

func TestCompressionFallsBackWhenRerankerErrors(t *testing.T) {
	s := newFakeStore()
	s.vectorByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "vec hit", Score: 0.8}}

	c := NewCompression(s, &fakeReranker{err: errors.New("rerank down")}, true)
	out, meta, err := c.Run(context.Background(), "q", Hints{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, meta.RerankerUsed)
	assert.NotEmpty(t, meta.Warnings)
}

func TestCompressionLimitsToFiveUnderProductionIncident(t *testing.T) {
	s := newFakeStore()
	hits := make([]ragcontext.RetrievedContext, 0, 8)
	for i := 0; i < 8; i++ {
		hits = append(hits, ragcontext.RetrievedContext{Content: string(rune('a' + i)), Score: float64(8-i) / 10})
	}
	s.vectorByCollection[store.Bugs] = hits

	c := NewCompression(s, nil, false)
	out, _, err := c.Run(context.Background(), "q", Hints{ProductionIncident: true}, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 5)
}

type fakeParaphraser struct {
	out []string
	err error
}

func (f *fakeParaphraser) Paraphrase(ctx context.Context, query string, n int) ([]string, error) {
	return f.out, f.err
}

func TestEnsembleUsesAtLeastThreeMethodsWhenAllSucceed(t *testing.T) {
	s := newFakeStore()
	s.vectorByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "vector hit", Score: 0.9}}
	s.keywordByCollection[store.Bugs] = []ragcontext.RetrievedContext{{Content: "keyword hit", Score: 0.7}}

	compression := NewCompression(s, nil, false)
	ensemble := NewEnsemble(s, compression, &fakeParaphraser{out: []string{"paraphrase one"}})

	out, meta, err := ensemble.Run(context.Background(), "common causes of OutOfMemoryError", Hints{UserCanWait: true}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.GreaterOrEqual(t, len(meta.MethodsUsed), 3)
}

func TestEnsembleFailsOnlyWhenEverySubRetrievalEmpty(t *testing.T) {
	s := newFakeStore()
	compression := NewCompression(s, nil, false)
	ensemble := NewEnsemble(s, compression, nil)

	_, _, err := ensemble.Run(context.Background(), "q", Hints{}, 10)
	require.Error(t, err)
}

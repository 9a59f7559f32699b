package context

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeywordRescalesByBatchMax(t *testing.T) {
	hits := []RawHit{
		{Content: "a", RawScore: 0.8, Kind: KeywordHit},
		{Content: "b", RawScore: 0.4, Kind: KeywordHit},
	}
	out := Normalize(hits, "bm25_bugs")
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
	assert.Equal(t, "bm25_bugs", out[0].Source)
}

func TestNormalizeKeywordAllZeroWhenMaxZero(t *testing.T) {
	hits := []RawHit{{Content: "a", RawScore: 0, Kind: KeywordHit}}
	out := Normalize(hits, "bm25_bugs")
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Score)
}

func TestNormalizeEmptyInputProducesEmptyOutput(t *testing.T) {
	out := Normalize(nil, "bm25_bugs")
	assert.Empty(t, out)
}

func TestNormalizeNeverProducesNaNOrInf(t *testing.T) {
	hits := []RawHit{
		{Content: "a", RawScore: math.NaN(), Kind: VectorHit},
		{Content: "b", RawScore: math.Inf(1), Kind: VectorHit},
	}
	out := Normalize(hits, "vec")
	for _, rc := range out {
		assert.False(t, math.IsNaN(rc.Score))
		assert.False(t, math.IsInf(rc.Score, 0))
	}
}

func TestFuseProducesScoresInRangeAndIsOrderInvariant(t *testing.T) {
	listA := []RetrievedContext{
		{Content: "apple pie", Score: 0.9},
		{Content: "banana bread", Score: 0.2},
	}
	listB := []RetrievedContext{
		{Content: "Apple   Pie", Score: 0.4},
	}

	fusedAB := Fuse([][]RetrievedContext{listA, listB}, []float64{0.7, 0.3})
	fusedBA := Fuse([][]RetrievedContext{listB, listA}, []float64{0.3, 0.7})

	require.Len(t, fusedAB, 2)
	require.Len(t, fusedBA, 2)
	for _, rc := range fusedAB {
		assert.GreaterOrEqual(t, rc.Score, 0.0)
		assert.LessOrEqual(t, rc.Score, 1.0)
	}

	byContent := func(list []RetrievedContext) map[string]float64 {
		m := make(map[string]float64)
		for _, rc := range list {
			m[contentHash(rc.Content)] = rc.Score
		}
		return m
	}
	assert.Equal(t, byContent(fusedAB), byContent(fusedBA))
}

func TestFuseDeduplicatesByNormalizedContentHash(t *testing.T) {
	listA := []RetrievedContext{{Content: "Identical Content", Score: 1.0}}
	listB := []RetrievedContext{{Content: "identical   content", Score: 1.0}}
	fused := Fuse([][]RetrievedContext{listA, listB}, []float64{0.5, 0.5})
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
}

func TestFuseIsIdempotentUnderIdenticalInputs(t *testing.T) {
	list := []RetrievedContext{{Content: "x", Score: 0.5}, {Content: "y", Score: 0.3}}
	first := Fuse([][]RetrievedContext{list}, []float64{1.0})
	second := Fuse([][]RetrievedContext{first}, []float64{1.0})
	assert.Equal(t, first, second)
}

func TestTopKPreservesOrderAmongEqualScoresWhenKGEQLen(t *testing.T) {
	list := []RetrievedContext{
		{Content: "a", Score: 0.5},
		{Content: "b", Score: 0.5},
		{Content: "c", Score: 0.5},
	}
	out := TopK(list, 5)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, "b", out[1].Content)
	assert.Equal(t, "c", out[2].Content)
}

func TestTopKSelectsHighestScoring(t *testing.T) {
	list := []RetrievedContext{
		{Content: "low", Score: 0.1},
		{Content: "high", Score: 0.9},
		{Content: "mid", Score: 0.5},
	}
	out := TopK(list, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Content)
	assert.Equal(t, "mid", out[1].Content)
}

func TestContentHashStableUnderWhitespaceAndCase(t *testing.T) {
	a := ContentHash("Hello   World")
	b := ContentHash("hello world")
	assert.Equal(t, a, b)
}

func TestDeduplicateByHashKeepsFirstOccurrence(t *testing.T) {
	list := []RetrievedContext{
		{Content: "dup", Score: 0.9, Source: "first"},
		{Content: "DUP", Score: 0.1, Source: "second"},
	}
	out := DeduplicateByHash(list)
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Source)
}

package store

import (
	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

// fuseVectorKeyword combines independently-fetched vector and keyword result
// lists using the weighted fusion rule from the context package, then
// returns the top-k. Shared by every backend's HybridSearch so the fusion
// math only lives in one place.
func fuseVectorKeyword(vectorHits, keywordHits []ragcontext.RetrievedContext, k int, vectorWeight, keywordWeight float64) []ragcontext.RetrievedContext {
	fused := ragcontext.Fuse([][]ragcontext.RetrievedContext{vectorHits, keywordHits}, []float64{vectorWeight, keywordWeight})
	return ragcontext.TopK(fused, k)
}

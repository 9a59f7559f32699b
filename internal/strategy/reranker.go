package strategy

import (
	"context"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

// Reranker reorders a candidate set of contexts using a dedicated relevance
// model. Contract: reordered docs carry new scores in [0,1]. Contextual
// compression replaces the vector score with the reranker's score rather
// than blending the two (see DESIGN.md open-question decision).
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []ragcontext.RetrievedContext, k int) ([]ragcontext.RetrievedContext, error)
}

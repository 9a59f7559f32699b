// Package context holds the engine's canonical retrieved-context record and
// the fusion/dedup/ranking logic every strategy funnels its raw hits through.
//
// Named ragcontext in import aliases by convention to avoid colliding with
// the standard library context package.
package context

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"sort"
	"strings"
)

// RetrievedContext is a single unit of evidence returned by a retrieval strategy.
type RetrievedContext struct {
	Content  string
	Metadata map[string]string
	Source   string
	Score    float64
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// contentHash is stable under whitespace changes and case differences in content.
func contentHash(content string) string {
	normalized := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// RawHit is the shape a back-end returns before it is mapped to a RetrievedContext.
type RawHit struct {
	Content  string
	Metadata map[string]string
	// RawScore is a back-end specific score: cosine similarity for vector hits,
	// a ranking function's output for keyword hits. Kind tells Normalize which
	// rescaling rule to apply.
	RawScore float64
	Kind     HitKind
}

// HitKind selects the rescaling rule Normalize applies to a RawHit.
type HitKind int

const (
	// VectorHit carries a cosine similarity in [-1,1]. score = 1 - cosine_distance
	// reduces to the similarity itself, clamped to [0,1].
	VectorHit HitKind = iota
	// KeywordHit carries an unbounded ranking-function score, rescaled by the
	// maximum rank observed in the batch.
	KeywordHit
	// PrenormalizedHit carries a score already in [0,1]; no rescaling applied
	// beyond a clamp, used by strategies (web search, log search) that compute
	// their own bespoke scoring.
	PrenormalizedHit
)

// Normalize maps raw back-end hits into RetrievedContext values tagged with
// strategyTag as Source. Keyword hits are rescaled against the batch maximum;
// vector hits are clamped; prenormalized hits pass through clamped to [0,1].
func Normalize(hits []RawHit, strategyTag string) []RetrievedContext {
	out := make([]RetrievedContext, 0, len(hits))
	if len(hits) == 0 {
		return out
	}

	maxRank := 0.0
	if len(hits) > 0 && hits[0].Kind == KeywordHit {
		for _, h := range hits {
			if h.RawScore > maxRank {
				maxRank = h.RawScore
			}
		}
	}

	for _, h := range hits {
		var score float64
		switch h.Kind {
		case KeywordHit:
			if maxRank <= 0 {
				score = 0
			} else {
				score = h.RawScore / maxRank
			}
		case VectorHit, PrenormalizedHit:
			score = h.RawScore
		}
		score = clamp01(score)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			score = 0
		}
		out = append(out, RetrievedContext{
			Content:  h.Content,
			Metadata: h.Metadata,
			Source:   strategyTag,
			Score:    score,
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Fuse combines N parallel result lists with non-negative weights summing to
// (approximately) 1 into a single ordered, deduplicated-by-content-hash list.
// Fuse is idempotent under identical inputs and commutative across the order
// of the input lists: the grouping is keyed by content hash, not position.
func Fuse(lists [][]RetrievedContext, weights []float64) []RetrievedContext {
	if len(lists) != len(weights) {
		panic("context: Fuse requires one weight per list")
	}

	type group struct {
		hash        string
		content     string
		metadata    map[string]string
		fusedScore  float64
		maxRaw      float64
		firstSeenAt int
	}

	order := make([]string, 0)
	groups := make(map[string]*group)
	seenAt := 0

	for li, list := range lists {
		w := weights[li]
		for _, rc := range list {
			h := contentHash(rc.Content)
			g, ok := groups[h]
			if !ok {
				g = &group{
					hash:        h,
					content:     rc.Content,
					metadata:    rc.Metadata,
					firstSeenAt: seenAt,
				}
				groups[h] = g
				order = append(order, h)
				seenAt++
			}
			g.fusedScore += w * rc.Score
			if rc.Score > g.maxRaw {
				g.maxRaw = rc.Score
			}
		}
	}

	fused := make([]RetrievedContext, 0, len(order))
	for _, h := range order {
		g := groups[h]
		fused = append(fused, RetrievedContext{
			Content:  g.content,
			Metadata: g.metadata,
			Source:   "fused",
			Score:    clamp01(g.fusedScore),
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		gi, gj := groups[contentHash(fused[i].Content)], groups[contentHash(fused[j].Content)]
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if gi.maxRaw != gj.maxRaw {
			return gi.maxRaw > gj.maxRaw
		}
		return gi.firstSeenAt < gj.firstSeenAt
	})

	return fused
}

// TopK deterministically selects the k highest-scoring entries, preserving
// input order among equal scores (stable sort over a copy).
func TopK(list []RetrievedContext, k int) []RetrievedContext {
	if k >= len(list) {
		out := make([]RetrievedContext, len(list))
		copy(out, list)
		return out
	}
	if k <= 0 {
		return []RetrievedContext{}
	}
	indexed := make([]RetrievedContext, len(list))
	copy(indexed, list)
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].Score > indexed[j].Score
	})
	return indexed[:k]
}

// DeduplicateByHash removes later entries whose content hash has already been
// seen, keeping the first occurrence. Used by strategies (Ensemble, WebSearch)
// that need dedup before fusion rather than as part of it.
func DeduplicateByHash(list []RetrievedContext) []RetrievedContext {
	seen := make(map[string]struct{}, len(list))
	out := make([]RetrievedContext, 0, len(list))
	for _, rc := range list {
		h := contentHash(rc.Content)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, rc)
	}
	return out
}

// ContentHash exposes contentHash for callers that need the same content-hash
// rule this package uses internally for Fuse/DeduplicateByHash. Log search
// dedups by normalized-message hash instead (it strips timestamps and digit
// runs before hashing, which this hash does not), so it does not use this.
func ContentHash(content string) string {
	return contentHash(content)
}

package query

import (
	"math"
	"sort"
)

// ExpansionParams bounds the entity neighbourhood pulled into context.
type ExpansionParams struct {
	EntityLimit           int
	EmbeddingMatchMin     float64
	EmbeddingMatchMax     float64
	EntityLimitMinMaxCase int
	EntityLimitMaxCase    int
}

func DefaultExpansionParams() ExpansionParams {
	return ExpansionParams{
		EntityLimit:           40,
		EmbeddingMatchMin:     0.3,
		EmbeddingMatchMax:     0.9,
		EntityLimitMinMaxCase: 20,
		EntityLimitMaxCase:    40,
	}
}

// Expansion is the traversal budget for one entity. Depth 0 keeps the
// entity without neighbours.
type Expansion struct {
	Depth int
	Limit int
}

// ExpansionFor maps an entity's similarity to the question onto a traversal
// budget. Entities without a comparable embedding get the moderate budget.
func (p ExpansionParams) ExpansionFor(similarity float64, hasEmbedding bool) Expansion {
	switch {
	case !hasEmbedding:
		return Expansion{Depth: 1, Limit: p.EntityLimitMinMaxCase}
	case similarity > p.EmbeddingMatchMax:
		return Expansion{Depth: 2, Limit: p.EntityLimitMaxCase}
	case similarity >= p.EmbeddingMatchMin:
		return Expansion{Depth: 1, Limit: p.EntityLimitMinMaxCase}
	default:
		return Expansion{}
	}
}

// EntityCandidate is an entity referenced by at least one chunk hit.
type EntityCandidate struct {
	ElementID string
	ID        string
	Embedding []float64
	ChunkIDs  []string

	Similarity   float64
	HasEmbedding bool
}

// RankEntities orders candidates by the number of distinct chunks that
// reference them, most referenced first, and keeps at most limit. Ties keep
// their input order.
func RankEntities(candidates []EntityCandidate, limit int) []EntityCandidate {
	ranked := make([]EntityCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return distinctCount(ranked[i].ChunkIDs) > distinctCount(ranked[j].ChunkIDs)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func distinctCount(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// CosineSimilarity returns the cosine of the angle between a and b. ok is
// false when the vectors differ in length or either has zero magnitude.
func CosineSimilarity(a, b []float64) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// scoreEntities fills Similarity and HasEmbedding against the question
// embedding.
func scoreEntities(candidates []EntityCandidate, question []float64) {
	for i := range candidates {
		sim, ok := CosineSimilarity(candidates[i].Embedding, question)
		candidates[i].Similarity = sim
		candidates[i].HasEmbedding = ok
	}
}

// groupByExpansion buckets entity element ids by traversal budget so each
// budget runs as one query. Entities with depth 0 are left out.
func groupByExpansion(p ExpansionParams, candidates []EntityCandidate) map[Expansion][]string {
	groups := make(map[Expansion][]string)
	for _, c := range candidates {
		exp := p.ExpansionFor(c.Similarity, c.HasEmbedding)
		if exp.Depth == 0 || exp.Limit <= 0 {
			continue
		}
		groups[exp] = append(groups[exp], c.ElementID)
	}
	return groups
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

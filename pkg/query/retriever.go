package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/fmulab/graphqa/pkg/ai"
	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/graph"
	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/errgroup"
)

// candidateFactor widens the index search when results are filtered by
// document afterwards.
const candidateFactor = 4

// Request is one retrieval run.
type Request struct {
	Question      string
	DocumentNames []string
	Plan          Plan
	Tracer        Tracer
}

// Result holds the context blocks for a request. Degraded is set when a
// graph or embedding call failed and the blocks may be incomplete.
type Result struct {
	Blocks   []Block
	Degraded bool
}

// Retriever assembles context blocks from the graph for a resolved plan.
type Retriever struct {
	exec      graph.Executor
	embedder  ai.Embedder
	expansion ExpansionParams
	budget    Budget
}

type RetrieverOption func(*Retriever)

func WithExpansionParams(p ExpansionParams) RetrieverOption {
	return func(r *Retriever) {
		r.expansion = p
	}
}

// WithBudget bounds the assembled context by token count.
func WithBudget(b Budget) RetrieverOption {
	return func(r *Retriever) {
		r.budget = b
	}
}

// NewRetriever creates a retriever. embedder may be nil, in which case only
// keyword based strategies return results.
func NewRetriever(exec graph.Executor, embedder ai.Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		exec:      exec,
		embedder:  embedder,
		expansion: DefaultExpansionParams(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type hit struct {
	ElementID string
	Score     float64
}

type chunkHit struct {
	ElementID string
	Text      string
	Score     float64
	Source    string
}

// Retrieve runs the plan against the graph. Graph and embedding failures
// degrade to fewer or no blocks; only cancellation of ctx is returned as an
// error.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, error) {
	var res Result
	if strings.TrimSpace(req.Question) == "" {
		return res, nil
	}

	var blocks []Block
	var err error
	if req.Plan.Mode == ModeGraph {
		blocks, err = r.keywordGraph(ctx, req)
	} else {
		blocks, err = r.indexed(ctx, req, &res)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		logger.Error("Retrieval failed", "mode", req.Plan.Mode, "err", err)
		res.Degraded = true
		return res, nil
	}

	res.Blocks = r.budget.Fit(blocks)
	RecordUsedSources(req.Tracer, Sources(res.Blocks)...)
	return res, nil
}

func (r *Retriever) indexed(ctx context.Context, req Request, res *Result) ([]Block, error) {
	hits, embedding, err := r.search(ctx, req, res)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	if req.Plan.ExpandEntities {
		return r.expand(ctx, req, hits, embedding, res)
	}
	return r.hydrate(ctx, req, hits)
}

func (r *Retriever) filterNames(req Request) []string {
	if !req.Plan.DocumentFilter {
		return []string{}
	}
	names := make([]string, 0, len(req.DocumentNames))
	for _, n := range req.DocumentNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// search runs the index legs of the plan and merges their hits. It also
// returns the question embedding, nil when none was computed.
func (r *Retriever) search(ctx context.Context, req Request, res *Result) ([]hit, []float64, error) {
	plan := req.Plan
	names := r.filterNames(req)
	filter := len(names) > 0

	candidateK := plan.TopK
	if filter {
		candidateK = plan.TopK * candidateFactor
	}

	var embedding []float64
	if plan.IndexName != "" {
		emb, err := r.embed(ctx, req.Question)
		switch {
		case err == nil:
			embedding = emb
		case ctx.Err() != nil:
			return nil, nil, err
		case plan.Hybrid():
			logger.Warn("Embedding failed, falling back to keyword search", "mode", plan.Mode, "err", err)
			res.Degraded = true
		default:
			return nil, nil, err
		}
	}

	base := map[string]any{
		"top_k":          plan.TopK,
		"candidate_k":    candidateK,
		"document_names": names,
	}

	// Legs report failures through their own error so one failing leg does
	// not cancel the other.
	var vectorHits, keywordHits []hit
	var vectorErr, keywordErr error
	legs := 0
	var g errgroup.Group
	if embedding != nil {
		legs++
		g.Go(func() error {
			params := withParams(base, map[string]any{
				"index_name": plan.IndexName,
				"embedding":  embedding,
			})
			vectorHits, vectorErr = r.runSearch(ctx, vectorSearchQuery(filter), params)
			return nil
		})
	}
	keywords := EscapeLucene(req.Question)
	if plan.KeywordIndex != "" && keywords != "" {
		legs++
		g.Go(func() error {
			params := withParams(base, map[string]any{
				"keyword_index": plan.KeywordIndex,
				"query_text":    keywords,
			})
			keywordHits, keywordErr = r.runSearch(ctx, keywordSearchQuery(filter), params)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	failed := 0
	for _, leg := range []struct {
		name string
		err  error
	}{{"vector", vectorErr}, {"keyword", keywordErr}} {
		if leg.err == nil {
			continue
		}
		failed++
		if !plan.Hybrid() {
			return nil, nil, leg.err
		}
		logger.Warn("Search leg failed, using the remaining results", "mode", plan.Mode, "leg", leg.name, "err", leg.err)
		res.Degraded = true
	}
	if legs > 0 && failed == legs {
		return nil, nil, errors.Join(vectorErr, keywordErr)
	}

	if plan.Hybrid() {
		return mergeHits(plan.TopK, vectorHits, keywordHits), embedding, nil
	}
	return append(vectorHits, keywordHits...), embedding, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float64, error) {
	if r.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	emb, err := r.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 {
		return nil, errors.New("empty embedding")
	}
	return toFloat64s(emb), nil
}

func (r *Retriever) runSearch(ctx context.Context, query string, params map[string]any) ([]hit, error) {
	result, err := r.exec.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}
	hits := make([]hit, 0, len(result.Records))
	for _, rec := range result.Records {
		id := getString(rec, "element_id")
		if id == "" {
			continue
		}
		hits = append(hits, hit{ElementID: id, Score: getFloat(rec, columnScore)})
	}
	return hits, nil
}

// mergeHits normalizes each leg by its best score, keeps the higher score
// per node and returns the topK best.
func mergeHits(topK int, legs ...[]hit) []hit {
	best := make(map[string]float64)
	order := make([]string, 0)
	for _, leg := range legs {
		top := 0.0
		for _, h := range leg {
			top = max(top, h.Score)
		}
		for _, h := range leg {
			score := h.Score
			if top > 0 {
				score /= top
			}
			prev, seen := best[h.ElementID]
			if !seen {
				order = append(order, h.ElementID)
			}
			if !seen || score > prev {
				best[h.ElementID] = score
			}
		}
	}

	merged := make([]hit, 0, len(order))
	for _, id := range order {
		merged = append(merged, hit{ElementID: id, Score: best[id]})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func hitParams(hits []hit) []map[string]any {
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, map[string]any{"element_id": h.ElementID, "score": h.Score})
	}
	return out
}

func withParams(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (r *Retriever) hydrate(ctx context.Context, req Request, hits []hit) ([]Block, error) {
	result, err := r.exec.ExecuteQuery(ctx, hydrateQuery(req.Plan.RetrievalQuery), map[string]any{
		"hits":               hitParams(hits),
		"status":             common.DocumentStatusCompleted,
		"relationship_limit": relationshipsPerBlock,
	})
	if err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, len(result.Records))
	for _, rec := range result.Records {
		if b, ok := blockFromRecord(rec); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

// expand resolves chunk hits, ranks the entities they mention and pulls in
// each entity's neighbourhood within its similarity budget.
func (r *Retriever) expand(ctx context.Context, req Request, hits []hit, embedding []float64, res *Result) ([]Block, error) {
	result, err := r.exec.ExecuteQuery(ctx, hydrateQuery(req.Plan.RetrievalQuery), map[string]any{
		"hits":   hitParams(hits),
		"status": common.DocumentStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]chunkHit, 0, len(result.Records))
	chunkIDs := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		c := chunkHit{
			ElementID: getString(rec, "element_id"),
			Text:      getString(rec, "text"),
			Score:     getFloat(rec, columnScore),
			Source:    getString(rec, columnSource),
		}
		if c.ElementID == "" || strings.TrimSpace(c.Text) == "" {
			continue
		}
		chunks = append(chunks, c)
		chunkIDs = append(chunkIDs, c.ElementID)
	}
	RecordConsideredChunkIDs(req.Tracer, chunkIDs...)
	if len(chunks) == 0 {
		return nil, nil
	}

	entities, err := r.chunkEntities(ctx, chunkIDs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("Entity lookup failed, using chunks only", "err", err)
		res.Degraded = true
	}
	scoreEntities(entities, embedding)
	entities = RankEntities(entities, r.expansion.EntityLimit)

	entityIDs := make([]string, 0, len(entities))
	for _, e := range entities {
		entityIDs = append(entityIDs, e.ElementID)
	}
	RecordQueriedEntityIDs(req.Tracer, entityIDs...)

	neighbours, err := r.neighbourhoods(ctx, entities, req.Tracer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("Entity expansion failed, using entities only", "err", err)
		res.Degraded = true
	}

	return groupChunks(chunks, entities, neighbours), nil
}

func (r *Retriever) chunkEntities(ctx context.Context, chunkIDs []string) ([]EntityCandidate, error) {
	result, err := r.exec.ExecuteQuery(ctx, chunkEntitiesQuery, map[string]any{
		"chunk_ids":    chunkIDs,
		"entity_limit": r.expansion.EntityLimit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]EntityCandidate, 0, len(result.Records))
	for _, rec := range result.Records {
		c := EntityCandidate{
			ElementID: getString(rec, "element_id"),
			ID:        getString(rec, "id"),
			Embedding: getVector(rec, "embedding"),
			ChunkIDs:  getStrings(rec, "chunk_ids"),
		}
		if c.ElementID == "" {
			continue
		}
		if c.ID == "" {
			c.ID = c.ElementID
		}
		out = append(out, c)
	}
	return out, nil
}

// neighbourhood is what expansion found around one entity.
type neighbourhood struct {
	Entities      []string
	Relationships []string
}

func (r *Retriever) neighbourhoods(ctx context.Context, entities []EntityCandidate, tracer Tracer) (map[string]neighbourhood, error) {
	out := make(map[string]neighbourhood)
	groups := groupByExpansion(r.expansion, entities)

	budgets := make([]Expansion, 0, len(groups))
	for exp := range groups {
		budgets = append(budgets, exp)
	}
	slices.SortFunc(budgets, func(a, b Expansion) int {
		return cmp.Or(cmp.Compare(a.Depth, b.Depth), cmp.Compare(a.Limit, b.Limit))
	})

	for _, exp := range budgets {
		result, err := r.exec.ExecuteQuery(ctx, entityExpansionQuery(exp.Depth, exp.Limit), map[string]any{
			"entity_ids": groups[exp],
		})
		if err != nil {
			return out, fmt.Errorf("expand entities at depth %d: %w", exp.Depth, err)
		}
		for _, rec := range result.Records {
			id := getString(rec, "entity_id")
			raw, _ := rec.Get("paths")
			n, relIDs := walkPaths(raw)
			RecordQueriedRelationshipIDs(tracer, relIDs...)
			out[id] = n
		}
	}
	return out, nil
}

// walkPaths renders each path segment as "TYPE: next node" and collects the
// nodes reached along the way.
func walkPaths(raw any) (neighbourhood, []string) {
	var n neighbourhood
	var relIDs []string
	seenEntities := make(map[string]struct{})
	seenRels := make(map[string]struct{})

	list, _ := raw.([]any)
	for _, item := range list {
		path, ok := item.(neo4j.Path)
		if !ok {
			continue
		}
		for i, rel := range path.Relationships {
			if i+1 >= len(path.Nodes) {
				break
			}
			next := nodeName(path.Nodes[i+1])
			line := rel.Type + ": " + next
			if _, dup := seenRels[line]; !dup {
				seenRels[line] = struct{}{}
				n.Relationships = append(n.Relationships, line)
			}
			if _, dup := seenEntities[next]; !dup {
				seenEntities[next] = struct{}{}
				n.Entities = append(n.Entities, next)
			}
			relIDs = append(relIDs, rel.ElementId)
		}
	}
	return n, relIDs
}

// groupChunks builds one block per source document in first-hit order.
func groupChunks(chunks []chunkHit, entities []EntityCandidate, neighbours map[string]neighbourhood) []Block {
	type group struct {
		block    Block
		texts    []string
		chunkIDs map[string]struct{}
	}
	groups := make([]*group, 0)
	bySource := make(map[string]*group)
	for _, c := range chunks {
		g, ok := bySource[c.Source]
		if !ok {
			g = &group{block: Block{Source: c.Source, Score: c.Score}, chunkIDs: make(map[string]struct{})}
			bySource[c.Source] = g
			groups = append(groups, g)
		}
		g.texts = append(g.texts, c.Text)
		g.chunkIDs[c.ElementID] = struct{}{}
		g.block.Score = max(g.block.Score, c.Score)
	}

	blocks := make([]Block, 0, len(groups))
	for _, g := range groups {
		ents := newOrderedSet()
		rels := newOrderedSet()
		for _, e := range entities {
			if !mentions(e, g.chunkIDs) {
				continue
			}
			ents.add(e.ID)
			n := neighbours[e.ElementID]
			for _, name := range n.Entities {
				ents.add(name)
			}
			for _, line := range n.Relationships {
				rels.add(line)
			}
		}
		g.block.Text = strings.Join(g.texts, ChunkSeparator)
		g.block.Entities = ents.items
		g.block.Relationships = rels.items
		blocks = append(blocks, g.block)
	}
	return blocks
}

func mentions(e EntityCandidate, chunkIDs map[string]struct{}) bool {
	for _, id := range e.ChunkIDs {
		if _, ok := chunkIDs[id]; ok {
			return true
		}
	}
	return false
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

// keywordGraph serves ModeGraph: chunks matching the question's keywords
// plus the entities they mention and those entities' direct relationships.
func (r *Retriever) keywordGraph(ctx context.Context, req Request) ([]Block, error) {
	terms := KeywordTerms(req.Question)
	if len(terms) == 0 {
		return nil, nil
	}
	result, err := r.exec.ExecuteQuery(ctx, graphModeQuery, map[string]any{
		"status":             common.DocumentStatusCompleted,
		"document_names":     r.filterNames(req),
		"terms":              terms,
		"top_k":              req.Plan.TopK,
		"relationship_limit": relationshipsPerBlock,
	})
	if err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, len(result.Records))
	for _, rec := range result.Records {
		if b, ok := blockFromRecord(rec); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {},
	"which": {}, "who": {}, "whom": {}, "how": {}, "why": {}, "when": {}, "where": {},
	"with": {}, "this": {}, "that": {}, "from": {}, "does": {}, "did": {}, "can": {},
	"about": {}, "into": {}, "there": {}, "their": {}, "have": {}, "has": {}, "you": {},
}

// KeywordTerms lowercases the question and returns its distinct words of
// three or more letters that are not stop words. A question without such
// words yields itself as the only term.
func KeywordTerms(question string) []string {
	lower := strings.ToLower(strings.TrimSpace(question))
	if lower == "" {
		return nil
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	if len(terms) == 0 {
		return []string{lower}
	}
	return terms
}

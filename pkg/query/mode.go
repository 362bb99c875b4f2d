package query

import (
	"fmt"
	"strings"

	"github.com/fmulab/graphqa/pkg/common"
)

// Mode names a retrieval strategy.
type Mode string

const (
	ModeVector              Mode = "vector"
	ModeFulltext            Mode = "fulltext"
	ModeEntityVector        Mode = "entity_vector"
	ModeGraphVector         Mode = "graph_vector"
	ModeGraphVectorFulltext Mode = "graph_vector_fulltext"
	ModeGlobalVector        Mode = "global_vector"
	ModeGraph               Mode = "graph"
)

// DefaultMode is used when a request does not name a mode.
const DefaultMode = ModeGraphVectorFulltext

// Index names created by the ingestion pipeline.
const (
	VectorIndex           = "vector"
	KeywordIndex          = "keyword"
	EntityVectorIndex     = "entity_vector"
	CommunityVectorIndex  = "community_vector"
	CommunityKeywordIndex = "community_keyword"
)

const (
	DefaultTopK              = 5
	DefaultEmbeddingProperty = "embedding"
)

// Modes lists every supported mode in display order.
func Modes() []Mode {
	return []Mode{
		ModeVector,
		ModeFulltext,
		ModeEntityVector,
		ModeGraphVector,
		ModeGraphVectorFulltext,
		ModeGlobalVector,
		ModeGraph,
	}
}

// ConfigurationError reports a mode key with no strategy behind it.
type ConfigurationError struct {
	Mode string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown chat mode %q", e.Mode)
}

// Plan is the resolved retrieval configuration for one mode.
type Plan struct {
	Mode        Mode
	Description string

	// RetrievalQuery runs after the index search with node and score in
	// scope. Empty for ModeGraph.
	RetrievalQuery string

	TopK              int
	IndexName         string
	KeywordIndex      string
	DocumentFilter    bool
	NodeLabel         string
	EmbeddingProperty string
	TextProperties    []string

	// ExpandEntities turns on ranked, similarity-gated entity expansion
	// around the chunk hits.
	ExpandEntities bool
}

// Hybrid reports whether the plan combines vector and keyword search.
func (p Plan) Hybrid() bool {
	return p.IndexName != "" && p.KeywordIndex != ""
}

// Selector turns mode keys into plans.
type Selector struct {
	topK int
}

func NewSelector(topK int) *Selector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Selector{topK: topK}
}

// Resolve returns the plan for mode. Callers substitute DefaultMode before
// resolving; an empty key is rejected like any other unknown key.
func (s *Selector) Resolve(mode string) (Plan, error) {
	m := Mode(strings.TrimSpace(mode))

	p := Plan{
		Mode:              m,
		TopK:              s.topK,
		EmbeddingProperty: DefaultEmbeddingProperty,
	}

	switch m {
	case ModeVector:
		p.Description = "Vector similarity search over chunks of the selected documents"
		p.IndexName = VectorIndex
		p.DocumentFilter = true
		p.NodeLabel = common.LabelChunk
		p.TextProperties = []string{"text"}
	case ModeFulltext:
		p.Description = "Hybrid vector and keyword search over chunks"
		p.IndexName = VectorIndex
		p.KeywordIndex = KeywordIndex
		p.NodeLabel = common.LabelChunk
		p.TextProperties = []string{"text"}
	case ModeEntityVector:
		p.Description = "Vector similarity search over entities"
		p.IndexName = EntityVectorIndex
		p.NodeLabel = common.LabelEntity
		p.TextProperties = []string{"id"}
	case ModeGraphVector:
		p.Description = "Vector search over chunks of the selected documents, expanded through related entities"
		p.IndexName = VectorIndex
		p.DocumentFilter = true
		p.NodeLabel = common.LabelChunk
		p.TextProperties = []string{"text"}
		p.ExpandEntities = true
	case ModeGraphVectorFulltext:
		p.Description = "Hybrid vector and keyword search over chunks, expanded through related entities"
		p.IndexName = VectorIndex
		p.KeywordIndex = KeywordIndex
		p.NodeLabel = common.LabelChunk
		p.TextProperties = []string{"text"}
		p.ExpandEntities = true
	case ModeGlobalVector:
		p.Description = "Hybrid search over community summaries"
		p.IndexName = CommunityVectorIndex
		p.KeywordIndex = CommunityKeywordIndex
		p.NodeLabel = common.LabelCommunity
		p.TextProperties = []string{"summary"}
	case ModeGraph:
		p.Description = "Keyword match over chunks of the selected documents with their one-hop entities"
		p.DocumentFilter = true
		return p, nil
	default:
		return Plan{}, &ConfigurationError{Mode: mode}
	}

	p.RetrievalQuery = retrievalQueryFor(p)
	return p, nil
}

// Resolve resolves mode with the default top_k.
func Resolve(mode string) (Plan, error) {
	return NewSelector(DefaultTopK).Resolve(mode)
}

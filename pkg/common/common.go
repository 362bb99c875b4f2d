package common

import "time"

// Node labels, relationship types and statuses used by the ingestion
// pipeline that populates the graph. The QA pipeline only reads them.
const (
	LabelDocument  = "Document"
	LabelChunk     = "Chunk"
	LabelEntity    = "__Entity__"
	LabelCommunity = "__Community__"

	// WildcardLabel replaces an empty label set on processed nodes.
	WildcardLabel = "*"

	RelPartOf          = "PART_OF"
	RelFirstChunk      = "FIRST_CHUNK"
	RelNextChunk       = "NEXT_CHUNK"
	RelSimilar         = "SIMILAR"
	RelHasEntity       = "HAS_ENTITY"
	RelInCommunity     = "IN_COMMUNITY"
	RelParentCommunity = "PARENT_COMMUNITY"

	DocumentStatusCompleted = "Completed"
)

// Graph is the node/relationship payload returned for visualisation.
// Both slices are non-nil so they always encode as JSON arrays.
type Graph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// EmptyGraph returns a graph with empty, non-nil slices.
func EmptyGraph() Graph {
	return Graph{Nodes: []Node{}, Relationships: []Relationship{}}
}

// Node is the processed form of a graph node.
//
// Labels never contain LabelEntity and Properties never contain the
// embedding, text or summary fields.
type Node struct {
	ElementID  string         `json:"element_id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Relationship is an edge between two processed nodes.
type Relationship struct {
	ElementID          string `json:"element_id"`
	Type               string `json:"type"`
	StartNodeElementID string `json:"start_node_element_id"`
	EndNodeElementID   string `json:"end_node_element_id"`
}

// Role of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is one turn in a session transcript.
// Sources is only set on assistant turns that were grounded on documents.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

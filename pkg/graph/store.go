package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store answers document level questions over an Executor. Failures are
// logged and degrade to empty results.
type Store struct {
	exec           Executor
	chunkLimit     int
	communityDepth int
}

type StoreOption func(*Store)

// WithChunkLimit sets the default number of chunks fetched per document.
func WithChunkLimit(limit int) StoreOption {
	return func(s *Store) {
		if limit > 0 {
			s.chunkLimit = limit
		}
	}
}

// WithCommunityDepth caps the PARENT_COMMUNITY climb.
func WithCommunityDepth(depth int) StoreOption {
	return func(s *Store) {
		if depth > 0 {
			s.communityDepth = depth
		}
	}
}

func NewStore(exec Executor, opts ...StoreOption) *Store {
	s := &Store{
		exec:           exec,
		chunkLimit:     DefaultChunkLimit,
		communityDepth: DefaultCommunityDepth,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// GetCompletedDocuments returns the file names of all completed documents.
func (s *Store) GetCompletedDocuments(ctx context.Context) []string {
	names := make([]string, 0)

	res, err := s.exec.ExecuteQuery(ctx, completedDocumentsQuery, map[string]any{
		"status": common.DocumentStatusCompleted,
	})
	if err != nil {
		logger.Error("Failed to list completed documents", "err", err)
		return names
	}

	for _, record := range res.Records {
		if record == nil {
			continue
		}
		v, ok := record.Get("node")
		if !ok {
			continue
		}
		node, ok := v.(neo4j.Node)
		if !ok {
			continue
		}
		if status, _ := node.Props["status"].(string); status != common.DocumentStatusCompleted {
			continue
		}
		if name, _ := node.Props["fileName"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// GetGraphForDocuments returns the subgraph around the named documents.
// documentNames is coerced with CoerceDocumentNames. A non-positive
// chunkLimit uses the store default.
func (s *Store) GetGraphForDocuments(ctx context.Context, documentNames any, chunkLimit int) common.Graph {
	names := CoerceDocumentNames(documentNames)
	if len(names) == 0 {
		return common.EmptyGraph()
	}
	if chunkLimit <= 0 {
		chunkLimit = s.chunkLimit
	}

	res, err := s.exec.ExecuteQuery(ctx, GraphQuery(chunkLimit, s.communityDepth), map[string]any{
		"document_names": names,
		"status":         common.DocumentStatusCompleted,
	})
	if err != nil {
		logger.Error("Failed to load graph for documents", "documents", names, "err", err)
		return common.EmptyGraph()
	}

	return common.Graph{
		Nodes:         ExtractNodeElements(res.Records),
		Relationships: ExtractRelationships(res.Records),
	}
}

// CoerceDocumentNames normalizes a document selection into trimmed names.
//
// A string is first decoded as JSON: a list yields its elements and a JSON
// string yields itself. Anything else is taken as one literal name.
func CoerceDocumentNames(v any) []string {
	var raw []string

	switch t := v.(type) {
	case nil:
	case []string:
		raw = t
	case []any:
		raw = make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			if s, ok := e.(string); ok {
				raw = append(raw, s)
				continue
			}
			raw = append(raw, fmt.Sprint(e))
		}
	case json.RawMessage:
		return CoerceDocumentNames(string(t))
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			switch d := decoded.(type) {
			case []any:
				return CoerceDocumentNames(d)
			case string:
				raw = []string{d}
			default:
				raw = []string{t}
			}
		} else {
			raw = []string{t}
		}
	default:
		raw = []string{fmt.Sprint(t)}
	}

	names := make([]string, 0, len(raw))
	for _, name := range raw {
		names = append(names, strings.TrimSpace(name))
	}
	return names
}

package graph

import (
	"time"

	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Result columns read by the extractors.
const (
	NodesColumn         = "nodes"
	RelationshipsColumn = "rels"
)

// excludedProperties are dropped from processed nodes to bound payload size.
var excludedProperties = map[string]struct{}{
	"embedding": {},
	"text":      {},
	"summary":   {},
}

// ProcessNode converts a driver node into its display form.
func ProcessNode(node neo4j.Node) common.Node {
	labels := make([]string, 0, len(node.Labels))
	for _, label := range node.Labels {
		if label == common.LabelEntity {
			continue
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		labels = []string{common.WildcardLabel}
	}

	props := make(map[string]any, len(node.Props))
	for k, v := range node.Props {
		if _, skip := excludedProperties[k]; skip {
			continue
		}
		props[k] = normalizeValue(v)
	}

	return common.Node{
		ElementID:  node.ElementId,
		Labels:     labels,
		Properties: props,
	}
}

// normalizeValue renders temporal values as ISO-8601 strings.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case dbtype.Date:
		return time.Time(t).Format(time.DateOnly)
	case dbtype.LocalDateTime:
		return time.Time(t).Format("2006-01-02T15:04:05.999999999")
	case dbtype.LocalTime:
		return time.Time(t).Format("15:04:05.999999999")
	case dbtype.Time:
		return time.Time(t).Format("15:04:05.999999999Z07:00")
	case dbtype.Duration:
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// walkNodes visits every node held by v, descending into paths and lists.
func walkNodes(v any, visit func(neo4j.Node)) {
	switch t := v.(type) {
	case neo4j.Node:
		visit(t)
	case neo4j.Path:
		for _, n := range t.Nodes {
			visit(n)
		}
	case []any:
		for _, e := range t {
			walkNodes(e, visit)
		}
	}
}

func walkRelationships(v any, visit func(neo4j.Relationship)) {
	switch t := v.(type) {
	case neo4j.Relationship:
		visit(t)
	case neo4j.Path:
		for _, r := range t.Relationships {
			visit(r)
		}
	case []any:
		for _, e := range t {
			walkRelationships(e, visit)
		}
	}
}

// ExtractNodeElements collects the distinct nodes of the "nodes" column
// across all records, in first-seen order.
func ExtractNodeElements(records []*neo4j.Record) []common.Node {
	return extractNodes(records, NodesColumn)
}

func extractNodes(records []*neo4j.Record, column string) []common.Node {
	seen := make(map[string]struct{})
	nodes := make([]common.Node, 0)
	for _, record := range records {
		if record == nil {
			continue
		}
		v, ok := record.Get(column)
		if !ok {
			continue
		}
		walkNodes(v, func(n neo4j.Node) {
			if _, dup := seen[n.ElementId]; dup {
				return
			}
			seen[n.ElementId] = struct{}{}
			nodes = append(nodes, ProcessNode(n))
		})
	}
	return nodes
}

// ExtractRelationships collects the distinct relationships of the "rels"
// column across all records. Endpoints are resolved against every node in
// the result set; relationships missing an endpoint are logged and skipped.
func ExtractRelationships(records []*neo4j.Record) []common.Relationship {
	return extractRelationships(records, RelationshipsColumn)
}

func extractRelationships(records []*neo4j.Record, column string) []common.Relationship {
	index := make(map[string]common.Node)
	for _, record := range records {
		if record == nil {
			continue
		}
		for _, v := range record.Values {
			walkNodes(v, func(n neo4j.Node) {
				if _, ok := index[n.ElementId]; !ok {
					index[n.ElementId] = ProcessNode(n)
				}
			})
		}
	}

	seen := make(map[string]struct{})
	rels := make([]common.Relationship, 0)
	for _, record := range records {
		if record == nil {
			continue
		}
		v, ok := record.Get(column)
		if !ok {
			continue
		}
		walkRelationships(v, func(r neo4j.Relationship) {
			if _, dup := seen[r.ElementId]; dup {
				return
			}
			endpoints := 0
			for _, id := range []string{r.StartElementId, r.EndElementId} {
				if id != "" {
					endpoints++
				}
			}
			if endpoints < 2 {
				logger.Warn("Skipping relationship with missing endpoints", "element_id", r.ElementId, "type", r.Type, "endpoints", endpoints)
				return
			}
			start, okStart := index[r.StartElementId]
			end, okEnd := index[r.EndElementId]
			if !okStart || !okEnd {
				logger.Warn("Skipping relationship with unresolved endpoints", "element_id", r.ElementId, "type", r.Type)
				return
			}
			seen[r.ElementId] = struct{}{}
			rels = append(rels, common.Relationship{
				ElementID:          r.ElementId,
				Type:               r.Type,
				StartNodeElementID: start.ElementID,
				EndNodeElementID:   end.ElementID,
			})
		})
	}
	return rels
}

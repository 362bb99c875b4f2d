package query

import (
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func getString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func getFloat(record *neo4j.Record, key string) float64 {
	v, ok := record.Get(key)
	if !ok {
		return 0
	}
	return toFloat(v)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// getStrings reads a list column, dropping nulls and blanks.
func getStrings(record *neo4j.Record, key string) []string {
	v, ok := record.Get(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// getVector reads a numeric list column such as an embedding.
func getVector(record *neo4j.Record, key string) []float64 {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []float64:
		return list
	case []any:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			out = append(out, toFloat(item))
		}
		return out
	default:
		return nil
	}
}

// blockFromRecord maps a retrieval template row onto a block.
func blockFromRecord(record *neo4j.Record) (Block, bool) {
	texts := getStrings(record, columnTexts)
	if len(texts) == 0 {
		return Block{}, false
	}
	return Block{
		Source:        getString(record, columnSource),
		Text:          strings.Join(texts, ChunkSeparator),
		Score:         getFloat(record, columnScore),
		Entities:      getStrings(record, columnEntities),
		Relationships: getStrings(record, columnRelationships),
	}, true
}

// nodeName picks the human readable identifier of a node.
func nodeName(node neo4j.Node) string {
	for _, key := range []string{"id", "name", "title"} {
		if s, ok := node.Props[key].(string); ok && s != "" {
			return s
		}
	}
	return node.ElementId
}

package graph

import (
	"reflect"
	"testing"
	"time"

	"github.com/fmulab/graphqa/pkg/common"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func node(id string, labels []string, props map[string]any) neo4j.Node {
	if props == nil {
		props = map[string]any{}
	}
	return neo4j.Node{ElementId: id, Labels: labels, Props: props}
}

func rel(id, typ, start, end string) neo4j.Relationship {
	return neo4j.Relationship{ElementId: id, Type: typ, StartElementId: start, EndElementId: end}
}

func record(nodes []any, rels []any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{NodesColumn, RelationshipsColumn},
		Values: []any{nodes, rels},
	}
}

func TestProcessNodeLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []string
		want   []string
	}{
		{name: "only entity label", labels: []string{common.LabelEntity}, want: []string{"*"}},
		{name: "no labels", labels: nil, want: []string{"*"}},
		{name: "entity with type", labels: []string{common.LabelEntity, "Person"}, want: []string{"Person"}},
		{name: "chunk", labels: []string{"Chunk"}, want: []string{"Chunk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ProcessNode(node("4:x:1", tt.labels, nil))
			if !reflect.DeepEqual(got.Labels, tt.want) {
				t.Fatalf("labels = %v, want %v", got.Labels, tt.want)
			}
		})
	}
}

func TestProcessNodeExcludesLargeFields(t *testing.T) {
	t.Parallel()

	got := ProcessNode(node("4:x:2", []string{"Chunk"}, map[string]any{
		"id":        "c1",
		"embedding": []any{0.1, 0.2},
		"text":      "raw chunk text",
		"summary":   "community summary",
		"position":  int64(3),
	}))

	for _, k := range []string{"embedding", "text", "summary"} {
		if _, ok := got.Properties[k]; ok {
			t.Fatalf("property %q should be excluded", k)
		}
	}
	want := map[string]any{"id": "c1", "position": int64(3)}
	if !reflect.DeepEqual(got.Properties, want) {
		t.Fatalf("properties = %v, want %v", got.Properties, want)
	}
}

func TestProcessNodeTemporalValues(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	got := ProcessNode(node("4:x:3", []string{"Document"}, map[string]any{
		"createdAt": created,
		"day":       dbtype.Date(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		"local":     dbtype.LocalDateTime(time.Date(2024, 3, 5, 10, 30, 15, 0, time.UTC)),
		"history":   []any{created},
	}))

	want := map[string]any{
		"createdAt": "2024-03-05T10:30:00Z",
		"day":       "2024-03-05",
		"local":     "2024-03-05T10:30:15",
		"history":   []any{"2024-03-05T10:30:00Z"},
	}
	if !reflect.DeepEqual(got.Properties, want) {
		t.Fatalf("properties = %#v, want %#v", got.Properties, want)
	}
}

func TestExtractNodeElementsDeduplicates(t *testing.T) {
	t.Parallel()

	doc := node("4:x:10", []string{"Document"}, map[string]any{"fileName": "a.pdf"})
	chunk := node("4:x:11", []string{"Chunk"}, nil)
	entity := node("4:x:12", []string{common.LabelEntity, "Concept"}, nil)
	path := neo4j.Path{
		Nodes:         []neo4j.Node{chunk, entity},
		Relationships: []neo4j.Relationship{rel("5:x:1", "HAS_ENTITY", chunk.ElementId, entity.ElementId)},
	}

	records := []*neo4j.Record{
		record([]any{doc, chunk, path}, nil),
		record([]any{entity, doc}, nil),
	}

	got := ExtractNodeElements(records)
	var ids []string
	for _, n := range got {
		ids = append(ids, n.ElementID)
	}
	want := []string{"4:x:10", "4:x:11", "4:x:12"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestExtractRelationshipsDeduplicatesAndSkipsMalformed(t *testing.T) {
	t.Parallel()

	a := node("4:x:20", []string{"Chunk"}, nil)
	b := node("4:x:21", []string{common.LabelEntity}, nil)
	c := node("4:x:22", []string{common.LabelEntity}, nil)

	good := rel("5:x:1", "HAS_ENTITY", a.ElementId, b.ElementId)
	noEnd := rel("5:x:2", "RELATED", b.ElementId, "")
	noEndpoints := rel("5:x:3", "RELATED", "", "")
	dangling := rel("5:x:4", "RELATED", b.ElementId, "4:x:99")
	second := rel("5:x:5", "RELATED", b.ElementId, c.ElementId)

	records := []*neo4j.Record{
		record([]any{a, b, c}, []any{good, noEnd, noEndpoints, good}),
		record(nil, []any{dangling, second, good}),
	}

	got := ExtractRelationships(records)
	want := []common.Relationship{
		{ElementID: "5:x:1", Type: "HAS_ENTITY", StartNodeElementID: "4:x:20", EndNodeElementID: "4:x:21"},
		{ElementID: "5:x:5", Type: "RELATED", StartNodeElementID: "4:x:21", EndNodeElementID: "4:x:22"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("relationships = %#v, want %#v", got, want)
	}
}

func TestExtractFromEmptyRecords(t *testing.T) {
	t.Parallel()

	if got := ExtractNodeElements(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil nodes, got %#v", got)
	}
	if got := ExtractRelationships([]*neo4j.Record{nil}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil relationships, got %#v", got)
	}
}

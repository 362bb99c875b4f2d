package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/fmulab/graphqa/pkg/common"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeExecutor struct {
	mu      sync.Mutex
	result  *Result
	err     error
	queries []string
	params  []map[string]any
}

func (f *fakeExecutor) ExecuteQuery(_ context.Context, query string, params map[string]any) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &Result{}, nil
	}
	return f.result, nil
}

func documentRecord(fileName, status string) *neo4j.Record {
	return &neo4j.Record{
		Keys: []string{"node"},
		Values: []any{node("4:d:"+fileName, []string{common.LabelDocument}, map[string]any{
			"fileName": fileName,
			"status":   status,
		})},
	}
}

func TestGetCompletedDocuments(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{result: &Result{Records: []*neo4j.Record{
		documentRecord("a.pdf", "Completed"),
		documentRecord("b.pdf", "Processing"),
		documentRecord("c.pdf", "Failed"),
		documentRecord("d.pdf", "Completed"),
	}}}

	got := NewStore(exec).GetCompletedDocuments(context.Background())
	want := []string{"a.pdf", "d.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("documents = %v, want %v", got, want)
	}
	if exec.params[0]["status"] != "Completed" {
		t.Fatalf("status param = %v", exec.params[0]["status"])
	}
}

func TestGetCompletedDocumentsDegradesToEmpty(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		&ConnectionError{URI: "bolt://nowhere", Err: errors.New("refused")},
		&QueryExecutionError{Query: "MATCH", Err: errors.New("syntax")},
	} {
		got := NewStore(&fakeExecutor{err: err}).GetCompletedDocuments(context.Background())
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty list for %v, got %#v", err, got)
		}
	}
}

func TestCoerceDocumentNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{name: "literal string", input: "report.pdf", want: []string{"report.pdf"}},
		{name: "slice", input: []string{"report.pdf"}, want: []string{"report.pdf"}},
		{name: "json list", input: `["a.pdf", " b.pdf "]`, want: []string{"a.pdf", "b.pdf"}},
		{name: "json string", input: `"quoted.pdf"`, want: []string{"quoted.pdf"}},
		{name: "json number is literal", input: "2024", want: []string{"2024"}},
		{name: "padded literal", input: "  notes.txt\n", want: []string{"notes.txt"}},
		{name: "any slice", input: []any{" x.pdf", "y.pdf", nil}, want: []string{"x.pdf", "y.pdf"}},
		{name: "nil", input: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CoerceDocumentNames(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("CoerceDocumentNames(%#v) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGetGraphForDocumentsStringMatchesSlice(t *testing.T) {
	t.Parallel()

	doc := node("4:d:1", []string{common.LabelDocument}, map[string]any{"fileName": "report.pdf"})
	chunk := node("4:c:1", []string{common.LabelChunk}, map[string]any{"text": "hidden"})
	result := &Result{Records: []*neo4j.Record{
		record([]any{doc, chunk}, []any{rel("5:r:1", "PART_OF", chunk.ElementId, doc.ElementId)}),
	}}

	fromString := &fakeExecutor{result: result}
	fromSlice := &fakeExecutor{result: result}

	g1 := NewStore(fromString).GetGraphForDocuments(context.Background(), "report.pdf", 0)
	g2 := NewStore(fromSlice).GetGraphForDocuments(context.Background(), []string{"report.pdf"}, 0)

	if !reflect.DeepEqual(g1, g2) {
		t.Fatalf("graphs differ: %#v vs %#v", g1, g2)
	}
	if !reflect.DeepEqual(fromString.params, fromSlice.params) {
		t.Fatalf("params differ: %#v vs %#v", fromString.params, fromSlice.params)
	}
	if len(g1.Nodes) != 2 || len(g1.Relationships) != 1 {
		t.Fatalf("unexpected graph %#v", g1)
	}
	if !strings.Contains(fromString.queries[0], "LIMIT 50") {
		t.Fatalf("expected default chunk limit in query")
	}
}

func TestGetGraphForDocumentsQueryLimits(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	NewStore(exec, WithCommunityDepth(4)).GetGraphForDocuments(context.Background(), `["a.pdf"]`, 7)

	q := exec.queries[0]
	if !strings.Contains(q, "LIMIT 7") {
		t.Fatalf("chunk limit not rendered: %s", q)
	}
	if !strings.Contains(q, "PARENT_COMMUNITY*1..4") {
		t.Fatalf("community depth not rendered: %s", q)
	}
}

func TestGetGraphForDocumentsDegradesToEmpty(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{err: &QueryExecutionError{Query: "MATCH", Err: ErrQueryTimeout}}
	got := NewStore(exec).GetGraphForDocuments(context.Background(), "a.pdf", 10)
	if !reflect.DeepEqual(got, common.EmptyGraph()) {
		t.Fatalf("expected empty graph, got %#v", got)
	}

	empty := &fakeExecutor{}
	got = NewStore(empty).GetGraphForDocuments(context.Background(), "[]", 10)
	if !reflect.DeepEqual(got, common.EmptyGraph()) || len(empty.queries) != 0 {
		t.Fatalf("expected no query for empty selection")
	}
}

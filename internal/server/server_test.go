package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/fmulab/graphqa/pkg/chat"
	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/graph"
	"github.com/fmulab/graphqa/pkg/qa"
	"github.com/fmulab/graphqa/pkg/query"
)

type fakeGraph struct{}

func (fakeGraph) GetCompletedDocuments(context.Context) []string {
	return []string{"a.pdf", "b.pdf"}
}

func (fakeGraph) GetGraphForDocuments(_ context.Context, names any, limit int) common.Graph {
	g := common.EmptyGraph()
	for _, n := range names.([]string) {
		g.Nodes = append(g.Nodes, common.Node{
			ElementID:  n,
			Labels:     []string{common.LabelDocument},
			Properties: map[string]any{"chunk_limit": limit},
		})
	}
	return g
}

type fakeRetriever struct{}

func (fakeRetriever) Retrieve(_ context.Context, req query.Request) (query.Result, error) {
	return query.Result{Blocks: []query.Block{{Source: "a.pdf", Text: "Alpha is the first letter."}}}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, string) (string, error) {
	return "Alpha comes first.", nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	tracker := chat.NewMemoryTracker(chat.Params{})
	t.Cleanup(func() { _ = tracker.Close() })

	service := qa.NewService(fakeGraph{}, fakeRetriever{}, fakeGenerator{}, tracker)
	srv := httptest.NewServer(New(service))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, data
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if status != http.StatusOK || string(body) != "OK" {
		t.Fatalf("GET /health = %d %q", status, body)
	}
}

func TestGetDocuments(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/api/documents", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var got struct {
		Documents []string `json:"documents"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := []string{"a.pdf", "b.pdf"}; !reflect.DeepEqual(got.Documents, want) {
		t.Fatalf("documents = %v, want %v", got.Documents, want)
	}
}

func TestPostGraph(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantIDs    []string
		wantLimit  float64
	}{
		{"list", `{"documents":["a.pdf"," b.pdf "]}`, http.StatusOK, []string{"a.pdf", "b.pdf"}, 0},
		{"encoded list", `{"documents":"[\"a.pdf\"]","chunk_limit":7}`, http.StatusOK, []string{"a.pdf"}, 7},
		{"single name", `{"documents":"a.pdf"}`, http.StatusOK, []string{"a.pdf"}, 0},
		{"missing", `{}`, http.StatusBadRequest, nil, 0},
		{"negative limit", `{"documents":["a.pdf"],"chunk_limit":-1}`, http.StatusBadRequest, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, srv.URL+"/api/graph", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", status, tt.wantStatus, body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var g common.Graph
			if err := json.Unmarshal(body, &g); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var ids []string
			for _, n := range g.Nodes {
				ids = append(ids, n.ElementID)
				if n.Properties["chunk_limit"] != tt.wantLimit {
					t.Fatalf("chunk_limit = %v, want %v", n.Properties["chunk_limit"], tt.wantLimit)
				}
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Fatalf("nodes = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

type recordingExecutor struct {
	mu      sync.Mutex
	queries []string
}

func (e *recordingExecutor) ExecuteQuery(_ context.Context, q string, _ map[string]any) (*graph.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, q)
	return &graph.Result{}, nil
}

func (e *recordingExecutor) last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queries) == 0 {
		return ""
	}
	return e.queries[len(e.queries)-1]
}

func TestPostGraphUsesConfiguredChunkLimit(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	tracker := chat.NewMemoryTracker(chat.Params{})
	t.Cleanup(func() { _ = tracker.Close() })
	store := graph.NewStore(exec, graph.WithChunkLimit(7))
	srv := httptest.NewServer(New(qa.NewService(store, fakeRetriever{}, fakeGenerator{}, tracker)))
	t.Cleanup(srv.Close)

	tests := []struct {
		name      string
		body      string
		wantLimit string
	}{
		{"omitted", `{"documents":["a.pdf"]}`, "LIMIT 7"},
		{"explicit", `{"documents":["a.pdf"],"chunk_limit":3}`, "LIMIT 3"},
	}

	for _, tt := range tests {
		status, body := do(t, http.MethodPost, srv.URL+"/api/graph", tt.body)
		if status != http.StatusOK {
			t.Fatalf("%s: status = %d (%s)", tt.name, status, body)
		}
		q := exec.last()
		if !strings.Contains(q, tt.wantLimit) {
			t.Fatalf("%s: query does not contain %q:\n%s", tt.name, tt.wantLimit, q)
		}
		if strings.Contains(q, "LIMIT 50") {
			t.Fatalf("%s: query fell back to the package default", tt.name)
		}
	}
}

func TestGetModes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/api/modes", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var modes []qa.ModeInfo
	if err := json.Unmarshal(body, &modes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(modes) != len(query.Modes()) {
		t.Fatalf("got %d modes, want %d", len(modes), len(query.Modes()))
	}
	defaults := 0
	for _, m := range modes {
		if m.Default {
			defaults++
			if m.Mode != query.DefaultMode {
				t.Fatalf("default mode = %q", m.Mode)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("%d default modes", defaults)
	}
}

func TestPostChatRejectsBadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing message", `{"mode":"vector"}`, "message is required"},
		{"blank message", `{"message":"   "}`, "message is required"},
		{"unknown mode", `{"message":"hi","mode":"semantic"}`, `unknown chat mode "semantic"`},
		{"malformed", `{"message":`, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, srv.URL+"/api/chat", tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			var got struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

func TestChatLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, body := do(t, http.MethodPost, srv.URL+"/api/chat",
		`{"message":"Which letter is first?","documents":["a.pdf"],"mode":"vector"}`)
	if status != http.StatusOK {
		t.Fatalf("POST /api/chat = %d (%s)", status, body)
	}
	var resp qa.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Alpha comes first." || resp.SessionID == "" {
		t.Fatalf("response = %+v", resp)
	}
	if want := []string{"a.pdf"}; !reflect.DeepEqual(resp.Sources, want) {
		t.Fatalf("sources = %v, want %v", resp.Sources, want)
	}

	type history struct {
		SessionID string               `json:"session_id"`
		Messages  []common.ChatMessage `json:"messages"`
	}

	status, body = do(t, http.MethodGet, srv.URL+"/api/chat/"+resp.SessionID, "")
	if status != http.StatusOK {
		t.Fatalf("GET history = %d", status)
	}
	var h history
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.SessionID != resp.SessionID || len(h.Messages) != 2 {
		t.Fatalf("history = %+v", h)
	}
	if h.Messages[0].Role != common.RoleUser || h.Messages[1].Role != common.RoleAssistant {
		t.Fatalf("roles = %q, %q", h.Messages[0].Role, h.Messages[1].Role)
	}

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/chat/"+resp.SessionID, "")
	if status != http.StatusOK {
		t.Fatalf("DELETE = %d", status)
	}

	status, body = do(t, http.MethodGet, srv.URL+"/api/chat/"+resp.SessionID, "")
	if status != http.StatusOK {
		t.Fatalf("GET after delete = %d", status)
	}
	h = history{}
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Messages == nil || len(h.Messages) != 0 {
		t.Fatalf("messages after delete = %#v", h.Messages)
	}
}

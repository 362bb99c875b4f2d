package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredChunkIDs     TraceEventKind = "considered_chunk_ids"
	TraceEventUsedSources            TraceEventKind = "used_sources"
	TraceEventQueriedEntityIDs       TraceEventKind = "queried_entity_ids"
	TraceEventQueriedRelationshipIDs TraceEventKind = "queried_relationship_ids"
)

// TraceEvent is an extensible event envelope for query tracing.
// Ids are graph element ids.
type TraceEvent struct {
	Kind TraceEventKind
	IDs  []string
}

// Tracer is a sink for query tracing events.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func record(t Tracer, kind TraceEventKind, ids []string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: kind, IDs: ids})
}

func RecordConsideredChunkIDs(t Tracer, ids ...string) {
	record(t, TraceEventConsideredChunkIDs, ids)
}

func RecordUsedSources(t Tracer, sources ...string) {
	record(t, TraceEventUsedSources, sources)
}

func RecordQueriedEntityIDs(t Tracer, ids ...string) {
	record(t, TraceEventQueriedEntityIDs, ids)
}

func RecordQueriedRelationshipIDs(t Tracer, ids ...string) {
	record(t, TraceEventQueriedRelationshipIDs, ids)
}

// QueryTrace collects which chunks, entities and relationships a request
// looked at and which sources ended up in the prompt.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu  sync.Mutex
	ids map[TraceEventKind]map[string]struct{}
}

type QueryTraceSnapshot struct {
	ConsideredChunkIDs     []string `json:"considered_chunk_ids"`
	UsedSources            []string `json:"used_sources"`
	QueriedEntityIDs       []string `json:"queried_entity_ids"`
	QueriedRelationshipIDs []string `json:"queried_relationship_ids"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{ids: make(map[TraceEventKind]map[string]struct{})}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	switch event.Kind {
	case TraceEventConsideredChunkIDs, TraceEventUsedSources,
		TraceEventQueriedEntityIDs, TraceEventQueriedRelationshipIDs:
	default:
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.ids[event.Kind]
	if !ok {
		set = make(map[string]struct{})
		t.ids[event.Kind] = set
	}
	for _, id := range event.IDs {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		ConsideredChunkIDs:     sortedKeys(t.ids[TraceEventConsideredChunkIDs]),
		UsedSources:            sortedKeys(t.ids[TraceEventUsedSources]),
		QueriedEntityIDs:       sortedKeys(t.ids[TraceEventQueriedEntityIDs]),
		QueriedRelationshipIDs: sortedKeys(t.ids[TraceEventQueriedRelationshipIDs]),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

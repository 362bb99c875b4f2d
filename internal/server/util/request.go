package util

import (
	"encoding/json"
	"strings"

	"github.com/fmulab/graphqa/pkg/graph"
)

// MessageResponse is the body of every non-success reply.
type MessageResponse struct {
	Message string `json:"message"`
}

// DocumentNames decodes a "documents" field that may hold a list of names,
// a single name, or a JSON encoded list inside a string.
func DocumentNames(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []string{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return graph.CoerceDocumentNames(trimmed)
	}
	names := graph.CoerceDocumentNames(v)
	if names == nil {
		return []string{}
	}
	return names
}

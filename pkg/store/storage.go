package store

import (
	"context"

	"github.com/fmulab/graphqa/pkg/common"
)

// TranscriptStorage persists chat transcripts beyond the lifetime of the
// in-process session tracker.
type TranscriptStorage interface {
	// SaveMessages appends msgs to the session, creating the session on
	// first use. Messages of one call are stored atomically.
	SaveMessages(ctx context.Context, sessionID string, msgs ...common.ChatMessage) error
	// GetMessages returns the session's messages ordered by creation time.
	GetMessages(ctx context.Context, sessionID string) ([]common.ChatMessage, error)
	// ClearMessages deletes the session's messages but keeps the session.
	ClearMessages(ctx context.Context, sessionID string) error
}

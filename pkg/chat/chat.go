package chat

import (
	"context"
	"errors"
	"time"

	"github.com/fmulab/graphqa/pkg/common"
)

const (
	DefaultMaxTurns = 50
	DefaultTTL      = 24 * time.Hour
)

// ErrEmptySessionID is returned for operations without a session id.
var ErrEmptySessionID = errors.New("session id is empty")

// Tracker keeps the turns of each conversation. Turns passed to one Append
// call are stored together or not at all, in order.
type Tracker interface {
	Append(ctx context.Context, sessionID string, turns ...common.ChatMessage) error
	// History returns the turns of a session oldest first. Unknown and
	// expired sessions have no turns.
	History(ctx context.Context, sessionID string) ([]common.ChatMessage, error)
	// Clear drops the turns of a session. The session id stays usable.
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// Params bounds every session.
type Params struct {
	MaxTurns int
	TTL      time.Duration
}

func (p Params) withDefaults() Params {
	if p.MaxTurns <= 0 {
		p.MaxTurns = DefaultMaxTurns
	}
	if p.TTL <= 0 {
		p.TTL = DefaultTTL
	}
	return p
}

// trimTurns keeps the newest limit turns.
func trimTurns(turns []common.ChatMessage, limit int) []common.ChatMessage {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return append([]common.ChatMessage(nil), turns[len(turns)-limit:]...)
}

func stamp(turns []common.ChatMessage, now time.Time) []common.ChatMessage {
	out := make([]common.ChatMessage, len(turns))
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out[i] = t
	}
	return out
}

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/logger"
)

type session struct {
	mu      sync.Mutex
	turns   []common.ChatMessage
	touched time.Time
	// evicted is set under mu when the janitor drops the session from the map.
	evicted bool
}

// MemoryTracker keeps sessions in process memory. The map lock guards
// membership and each session has its own lock for its turns.
type MemoryTracker struct {
	params Params
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewMemoryTracker(params Params) *MemoryTracker {
	return &MemoryTracker{
		params:   params.withDefaults(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (m *MemoryTracker) session(id string) *session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s
	}
	s = &session{touched: m.now()}
	m.sessions[id] = s
	return s
}

// lockSession returns the live session for id with its lock held. A session
// evicted between lookup and locking is skipped and looked up again.
func (m *MemoryTracker) lockSession(id string) *session {
	for {
		s := m.session(id)
		s.mu.Lock()
		if !s.evicted {
			return s
		}
		s.mu.Unlock()
	}
}

func (m *MemoryTracker) expired(s *session, now time.Time) bool {
	return now.Sub(s.touched) > m.params.TTL
}

func (m *MemoryTracker) Append(ctx context.Context, sessionID string, turns ...common.ChatMessage) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	now := m.now()
	s := m.lockSession(sessionID)
	defer s.mu.Unlock()

	if m.expired(s, now) {
		s.turns = nil
	}
	s.turns = trimTurns(append(s.turns, stamp(turns, now)...), m.params.MaxTurns)
	s.touched = now
	return nil
}

func (m *MemoryTracker) History(_ context.Context, sessionID string) ([]common.ChatMessage, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return []common.ChatMessage{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.expired(s, m.now()) {
		return []common.ChatMessage{}, nil
	}
	out := make([]common.ChatMessage, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

func (m *MemoryTracker) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s := m.lockSession(sessionID)
	s.turns = nil
	s.touched = m.now()
	s.mu.Unlock()
	return nil
}

// Evict removes expired sessions and returns how many were dropped.
func (m *MemoryTracker) Evict() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		gone := m.expired(s, now)
		if gone {
			s.evicted = true
			delete(m.sessions, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// StartJanitor evicts expired sessions every interval until ctx is done.
func (m *MemoryTracker) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Evict(); n > 0 {
					logger.Debug("Evicted expired chat sessions", "count", n, "remaining", m.Len())
				}
			}
		}
	}()
}

// Len returns the number of tracked sessions.
func (m *MemoryTracker) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryTracker) Close() error {
	return nil
}

package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const upsertSessionSQL = `
INSERT INTO chat_sessions (session_id)
VALUES ($1)
ON CONFLICT (session_id) DO UPDATE SET updated_at = now()
RETURNING id`

const insertMessageSQL = `
INSERT INTO chat_messages (session_id, role, content, sources, created_at)
VALUES ($1, $2, $3, $4, $5)`

const selectMessagesSQL = `
SELECT m.role, m.content, m.sources, m.created_at
FROM chat_messages m
JOIN chat_sessions s ON s.id = m.session_id
WHERE s.session_id = $1
ORDER BY m.created_at ASC, m.id ASC`

const deleteMessagesSQL = `
DELETE FROM chat_messages m
USING chat_sessions s
WHERE m.session_id = s.id AND s.session_id = $1`

// TranscriptDBStorage implements store.TranscriptStorage on PostgreSQL.
type TranscriptDBStorage struct {
	conn pgxIConn
	now  func() time.Time
}

// NewTranscriptDBStorageWithConnection creates a transcript store on an
// existing connection or pool.
func NewTranscriptDBStorageWithConnection(conn pgxIConn) *TranscriptDBStorage {
	return &TranscriptDBStorage{conn: conn, now: time.Now}
}

func (s *TranscriptDBStorage) SaveMessages(ctx context.Context, sessionID string, msgs ...common.ChatMessage) (err error) {
	if sessionID == "" {
		return errors.New("save messages: empty session id")
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save messages: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var id int64
	if err = tx.QueryRow(ctx, upsertSessionSQL, sessionID).Scan(&id); err != nil {
		return fmt.Errorf("save messages: upsert session: %w", err)
	}

	for _, msg := range msgs {
		if !msg.Role.Valid() {
			err = fmt.Errorf("save messages: invalid role %q", msg.Role)
			return err
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		var sources []byte
		if sources, err = encodeSources(msg.Sources); err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, insertMessageSQL,
			id,
			string(msg.Role),
			util.SanitizePostgresText(msg.Content),
			sources,
			createdAt,
		); err != nil {
			return fmt.Errorf("save messages: insert: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("save messages: commit: %w", err)
	}
	return nil
}

func (s *TranscriptDBStorage) GetMessages(ctx context.Context, sessionID string) ([]common.ChatMessage, error) {
	rows, err := s.conn.Query(ctx, selectMessagesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	out := make([]common.ChatMessage, 0)
	for rows.Next() {
		var (
			role    string
			msg     common.ChatMessage
			sources []byte
		)
		if err := rows.Scan(&role, &msg.Content, &sources, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("get messages: scan: %w", err)
		}
		msg.Role = common.Role(role)
		if msg.Sources, err = decodeSources(sources); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

func (s *TranscriptDBStorage) ClearMessages(ctx context.Context, sessionID string) error {
	if _, err := s.conn.Exec(ctx, deleteMessagesSQL, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// encodeSources returns nil for an empty list so the column stays NULL.
func encodeSources(sources []string) ([]byte, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}
	return b, nil
}

func decodeSources(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sources []string
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return sources, nil
}

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/pkg/common"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session lists in Redis.
const KeyPrefix = "graphqa:session:"

// RedisTracker stores each session as a JSON encoded Redis list.
type RedisTracker struct {
	client redis.UniversalClient
	params Params
	now    func() time.Time
}

// NewRedisTracker connects to url (redis://...) and verifies the
// connection.
func NewRedisTracker(ctx context.Context, url string, params Params) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisTrackerWithClient(client, params), nil
}

func NewRedisTrackerWithClient(client redis.UniversalClient, params Params) *RedisTracker {
	return &RedisTracker{client: client, params: params.withDefaults(), now: time.Now}
}

func sessionKey(id string) string {
	return KeyPrefix + id
}

// Append pushes turns, trims the list to the newest MaxTurns and refreshes
// the TTL in one MULTI/EXEC transaction.
func (r *RedisTracker) Append(ctx context.Context, sessionID string, turns ...common.ChatMessage) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, 0, len(turns))
	for _, t := range stamp(turns, r.now()) {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode chat turn: %w", err)
		}
		values = append(values, b)
	}

	key := sessionKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-r.params.MaxTurns), -1)
		pipe.Expire(ctx, key, r.params.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append chat turns: %w", err)
	}
	return nil
}

func (r *RedisTracker) History(ctx context.Context, sessionID string) ([]common.ChatMessage, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	raw, err := r.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat turns: %w", err)
	}
	out := make([]common.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg common.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode chat turn: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear deletes the session list. A later Append under the same id starts
// a fresh list.
func (r *RedisTracker) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear chat turns: %w", err)
	}
	return nil
}

func (r *RedisTracker) Close() error {
	return r.client.Close()
}

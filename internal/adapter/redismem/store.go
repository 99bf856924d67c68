// Package redismem implements the conversation memory port on Redis
// lists, for deployments running more than one orchestrator instance.
// Redis serializes commands per key, which gives the per-conversation
// mutation ordering the port requires.
package redismem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/memorystore"
)

const keyPrefix = "conv:"

// defaultTTL bounds how long an idle conversation buffer survives.
const defaultTTL = 24 * time.Hour

// Store is a Redis-backed conversation memory store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis-backed store. ttl <= 0 falls back to 24h.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(id string) string {
	return keyPrefix + id
}

// Append pushes a message onto the conversation's list and refreshes
// the TTL.
func (s *Store) Append(ctx context.Context, conversationID string, msg conversation.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := s.key(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// GetRecent returns the most recent limit messages in original order.
func (s *Store) GetRecent(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	vals, err := s.client.LRange(ctx, s.key(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	msgs := make([]conversation.Message, 0, len(vals))
	for _, v := range vals {
		var m conversation.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Replace swaps the conversation's list wholesale.
func (s *Store) Replace(ctx context.Context, conversationID string, msgs []conversation.Message) error {
	key := s.key(conversationID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis replace: %w", err)
	}
	return nil
}

// Compile-time check that Store implements the port.
var _ memorystore.Store = (*Store)(nil)

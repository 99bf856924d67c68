// Package memstore implements the conversation memory port with an
// in-process keyed buffer. This is the default store for a single
// orchestrator instance; horizontally scaled deployments swap in the
// redismem adapter behind the same port.
package memstore

import (
	"context"
	"sync"

	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/memorystore"
)

// buffer holds one conversation's messages behind its own lock, so two
// concurrent turns on the same conversation serialize their mutations
// without contending with other conversations.
type buffer struct {
	mu   sync.Mutex
	msgs []conversation.Message
}

// Store is an in-process conversation memory store.
type Store struct {
	mu      sync.RWMutex
	buffers map[string]*buffer
}

// New creates an empty in-process store.
func New() *Store {
	return &Store{buffers: make(map[string]*buffer)}
}

// get returns the buffer for id, creating it on first use.
func (s *Store) get(id string) *buffer {
	s.mu.RLock()
	b, ok := s.buffers[id]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buffers[id]; ok {
		return b
	}
	b = &buffer{}
	s.buffers[id] = b
	return b
}

// Append adds a message to the end of the conversation's buffer.
func (s *Store) Append(_ context.Context, conversationID string, msg conversation.Message) error {
	b := s.get(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return nil
}

// GetRecent returns the most recent limit messages in original order.
func (s *Store) GetRecent(_ context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	b := s.get(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if len(b.msgs) > limit {
		start = len(b.msgs) - limit
	}
	out := make([]conversation.Message, len(b.msgs)-start)
	copy(out, b.msgs[start:])
	return out, nil
}

// Replace swaps the conversation's buffer wholesale.
func (s *Store) Replace(_ context.Context, conversationID string, msgs []conversation.Message) error {
	b := s.get(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = make([]conversation.Message, len(msgs))
	copy(b.msgs, msgs)
	return nil
}

// Compile-time check that Store implements the port.
var _ memorystore.Store = (*Store)(nil)

// Package memstoretest provides a compliance test suite for
// memorystore.Store implementations.
package memstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/memorystore"
)

// RunComplianceTests runs the standard compliance suite against any
// Store implementation.
func RunComplianceTests(t *testing.T, s memorystore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetRecentMissing", func(t *testing.T) {
		msgs, err := s.GetRecent(ctx, "never-seen", 8)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Fatalf("expected empty slice for unknown conversation, got %d messages", len(msgs))
		}
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		id := "order-conv"
		for i := range 5 {
			msg := conversation.Message{Role: conversation.RoleUser, Content: fmt.Sprintf("m%d", i)}
			if err := s.Append(ctx, id, msg); err != nil {
				t.Fatal(err)
			}
		}
		msgs, err := s.GetRecent(ctx, id, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 5 {
			t.Fatalf("expected 5 messages, got %d", len(msgs))
		}
		for i, m := range msgs {
			if want := fmt.Sprintf("m%d", i); m.Content != want {
				t.Errorf("message %d: expected %q, got %q", i, want, m.Content)
			}
		}
	})

	t.Run("GetRecentTrims", func(t *testing.T) {
		id := "trim-conv"
		for i := range 12 {
			msg := conversation.Message{Role: conversation.RoleUser, Content: fmt.Sprintf("m%d", i)}
			if err := s.Append(ctx, id, msg); err != nil {
				t.Fatal(err)
			}
		}
		msgs, err := s.GetRecent(ctx, id, 8)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 8 {
			t.Fatalf("expected 8 messages, got %d", len(msgs))
		}
		// Most recent 8 in original order: m4..m11.
		if msgs[0].Content != "m4" || msgs[7].Content != "m11" {
			t.Fatalf("expected m4..m11, got %q..%q", msgs[0].Content, msgs[7].Content)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		id := "replace-conv"
		_ = s.Append(ctx, id, conversation.Message{Role: conversation.RoleUser, Content: "old"})
		err := s.Replace(ctx, id, []conversation.Message{
			{Role: conversation.RoleSystem, Content: "fresh"},
		})
		if err != nil {
			t.Fatal(err)
		}
		msgs, err := s.GetRecent(ctx, id, 8)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 1 || msgs[0].Content != "fresh" {
			t.Fatalf("expected single fresh message, got %+v", msgs)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		id := "concurrent-conv"
		const n = 50
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Append(ctx, id, conversation.Message{
					Role:    conversation.RoleUser,
					Content: fmt.Sprintf("c%d", i),
				})
			}()
		}
		wg.Wait()
		msgs, err := s.GetRecent(ctx, id, n)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != n {
			t.Fatalf("expected %d messages after concurrent appends, got %d", n, len(msgs))
		}
	})
}

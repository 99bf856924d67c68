package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stayline/concierge/internal/adapter/bookingstub"
	"github.com/stayline/concierge/internal/adapter/memstore"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/port/vectorstore"
	"github.com/stayline/concierge/internal/service"
)

type orchFixture struct {
	llm    *fakeLLM
	memory *memstore.Store
	queue  *captureQueue
	orch   *service.Orchestrator
}

func newOrchFixture(t *testing.T, client *fakeLLM, vectors *fakeVectorStore) *orchFixture {
	t.Helper()
	cfg := testConfig()
	memory := memstore.New()
	queue := &captureQueue{}
	retrieval := service.NewRetrievalService(
		&fakeEmbedder{vector: []float32{0.1, 0.1, 0.1, 0.1, 0.1}},
		vectors,
		&cfg.Retrieval,
	)
	tools := service.NewToolRegistry()
	service.RegisterBuiltins(tools, queue, bookingstub.New(), retrieval)

	return &orchFixture{
		llm:    client,
		memory: memory,
		queue:  queue,
		orch:   service.NewOrchestrator(client, memory, retrieval, tools, cfg),
	}
}

func TestOrchestrator_Turn_GroundsReplyInContext(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{{Reply: "Hello"}}}
	vectors := &fakeVectorStore{results: []vectorstore.QueryResult{
		{ID: "doc-1-0", Score: 0.92, Text: "hotel info"},
	}}
	f := newOrchFixture(t, client, vectors)

	result, err := f.orch.Turn(context.Background(), testPrincipal(), &conversation.TurnRequest{
		TenantID: "hotel-1", UserID: "guest-1", Text: "tell me about the hotel",
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if result.Reply != "Hello" {
		t.Errorf("expected reply Hello, got %q", result.Reply)
	}

	req := f.llm.lastRequest()
	if len(req.Messages) == 0 || req.Messages[0].Role != conversation.RoleSystem {
		t.Fatal("expected a leading system message")
	}
	sys := req.Messages[0].Content
	if !strings.Contains(sys, "Context:") {
		t.Error("system message has no context block")
	}
	if !strings.Contains(sys, "hotel info") {
		t.Error("retrieved passage missing from system message")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != conversation.RoleUser || last.Content != "tell me about the hotel" {
		t.Errorf("user message not last: %+v", last)
	}
	if len(req.Tools) == 0 {
		t.Error("tool definitions missing from completion request")
	}
}

func TestOrchestrator_Turn_CommitsMemoryInOrder(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{{Reply: "Hi there"}}}
	f := newOrchFixture(t, client, &fakeVectorStore{})

	req := &conversation.TurnRequest{TenantID: "hotel-1", UserID: "guest-1", Text: "hi"}
	if _, err := f.orch.Turn(context.Background(), testPrincipal(), req); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	msgs, err := f.memory.GetRecent(context.Background(), req.ResolveID(), 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 committed messages, got %d", len(msgs))
	}
	if msgs[0].Role != conversation.RoleUser || msgs[0].Content != "hi" {
		t.Errorf("first committed message wrong: %+v", msgs[0])
	}
	if msgs[1].Role != conversation.RoleAssistant || msgs[1].Content != "Hi there" {
		t.Errorf("second committed message wrong: %+v", msgs[1])
	}
}

func TestOrchestrator_Turn_FailureLeavesMemoryUntouched(t *testing.T) {
	client := &fakeLLM{err: domain.ErrCompletion}
	f := newOrchFixture(t, client, &fakeVectorStore{})

	req := &conversation.TurnRequest{TenantID: "hotel-1", UserID: "guest-1", Text: "hello?"}
	_, err := f.orch.Turn(context.Background(), testPrincipal(), req)
	if !errors.Is(err, domain.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}

	msgs, _ := f.memory.GetRecent(context.Background(), req.ResolveID(), 10)
	if len(msgs) != 0 {
		t.Fatalf("failed turn committed %d messages", len(msgs))
	}
}

func TestOrchestrator_Turn_RetrievalFailureDegrades(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{{Reply: "ungrounded answer"}}}
	vectors := &fakeVectorStore{queryErr: errors.New("qdrant down")}
	f := newOrchFixture(t, client, vectors)

	result, err := f.orch.Turn(context.Background(), testPrincipal(), &conversation.TurnRequest{
		TenantID: "hotel-1", UserID: "guest-1", Text: "what time is breakfast",
	})
	if err != nil {
		t.Fatalf("Turn should survive retrieval failure, got %v", err)
	}
	if result.Reply != "ungrounded answer" {
		t.Errorf("unexpected reply: %q", result.Reply)
	}
	if strings.Contains(f.llm.lastRequest().Messages[0].Content, "Context:") {
		t.Error("system message claims context that was never retrieved")
	}
}

func TestOrchestrator_Turn_ToolErrorDoesNotAbortTurn(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{{
		Reply: "I've logged that and checked your booking.",
		ToolCalls: []conversation.ToolCall{
			{Name: "createTicket", Arguments: map[string]any{}}, // missing subject
			{Name: "getBooking", Arguments: map[string]any{}},
		},
	}}}
	f := newOrchFixture(t, client, &fakeVectorStore{})

	result, err := f.orch.Turn(context.Background(), testPrincipal(), &conversation.TurnRequest{
		TenantID: "hotel-1", UserID: "guest-1", Text: "my AC is broken, am I booked?",
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	if len(result.ToolResults) != 2 {
		t.Fatalf("expected 2 tool results, got %d", len(result.ToolResults))
	}
	if result.ToolResults[0].Error == "" {
		t.Error("invalid tool call did not record an error")
	}
	if result.ToolResults[1].Error != "" {
		t.Errorf("valid tool call failed: %s", result.ToolResults[1].Error)
	}
	if result.Reply == "" {
		t.Error("reply lost after tool failure")
	}
}

func TestOrchestrator_Turn_TenantMismatchRejected(t *testing.T) {
	f := newOrchFixture(t, &fakeLLM{}, &fakeVectorStore{})

	_, err := f.orch.Turn(context.Background(), testPrincipal(), &conversation.TurnRequest{
		TenantID: "hotel-9", UserID: "guest-1", Text: "hi",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for tenant mismatch, got %v", err)
	}
}

func TestOrchestrator_Turn_EmptyTextRejected(t *testing.T) {
	f := newOrchFixture(t, &fakeLLM{}, &fakeVectorStore{})

	_, err := f.orch.Turn(context.Background(), testPrincipal(), &conversation.TurnRequest{
		TenantID: "hotel-1", UserID: "guest-1", Text: "   ",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrchestrator_Turn_HistoryBounded(t *testing.T) {
	client := &fakeLLM{}
	f := newOrchFixture(t, client, &fakeVectorStore{})
	p := testPrincipal()

	for range 6 {
		if _, err := f.orch.Turn(context.Background(), p, &conversation.TurnRequest{
			TenantID: "hotel-1", UserID: "guest-1", Text: "another message",
		}); err != nil {
			t.Fatalf("Turn failed: %v", err)
		}
	}

	// 6 turns committed 12 messages; the next completion must see only
	// the configured recent window plus system and current user message.
	if _, err := f.orch.Turn(context.Background(), p, &conversation.TurnRequest{
		TenantID: "hotel-1", UserID: "guest-1", Text: "latest",
	}); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	req := f.llm.lastRequest()
	limit := testConfig().Memory.RecentLimit
	if got, want := len(req.Messages), limit+2; got != want {
		t.Fatalf("expected %d messages in completion, got %d", want, got)
	}
}

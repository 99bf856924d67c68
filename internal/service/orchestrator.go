package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/port/memorystore"
)

var orchTracer = otel.Tracer("concierge/orchestrator")

// Orchestrator runs one conversational turn: memory recall, retrieval,
// completion, tool execution, and memory commit.
type Orchestrator struct {
	llm       llm.Client
	memory    memorystore.Store
	retrieval *RetrievalService
	tools     *ToolRegistry
	cfg       *config.Config

	turnCounter  metric.Int64Counter
	turnDuration metric.Float64Histogram
	toolCounter  metric.Int64Counter
	contextGauge metric.Int64Histogram
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(client llm.Client, memory memorystore.Store, retrieval *RetrievalService, tools *ToolRegistry, cfg *config.Config) *Orchestrator {
	meter := otel.Meter("concierge/orchestrator")
	turnCounter, _ := meter.Int64Counter("concierge.turns",
		metric.WithDescription("Completed conversational turns"))
	turnDuration, _ := meter.Float64Histogram("concierge.turn.duration",
		metric.WithDescription("Turn latency in seconds"), metric.WithUnit("s"))
	toolCounter, _ := meter.Int64Counter("concierge.tool.calls",
		metric.WithDescription("Tool calls executed during turns"))
	contextGauge, _ := meter.Int64Histogram("concierge.retrieval.hits",
		metric.WithDescription("Context passages retrieved per turn"))

	return &Orchestrator{
		llm:          client,
		memory:       memory,
		retrieval:    retrieval,
		tools:        tools,
		cfg:          cfg,
		turnCounter:  turnCounter,
		turnDuration: turnDuration,
		toolCounter:  toolCounter,
		contextGauge: contextGauge,
	}
}

// Turn handles one utterance for the principal and returns the reply
// plus any tool outcomes.
//
// Memory is committed only after the completion succeeds: a failed turn
// leaves the conversation exactly as it was, so retries do not poison
// the history.
func (o *Orchestrator) Turn(ctx context.Context, p *Principal, req *conversation.TurnRequest) (*conversation.TurnResult, error) {
	start := time.Now()

	if err := validateTurn(p, req); err != nil {
		return nil, err
	}

	convID := req.ResolveID()
	ctx, span := orchTracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("conversation.id", convID),
	))
	defer span.End()

	history, err := o.memory.GetRecent(ctx, convID, o.cfg.Memory.RecentLimit)
	if err != nil {
		// Memory is recency-bounded and non-durable; a read failure
		// degrades the turn, it does not abort it.
		slog.Warn("memory recall failed", "conversation_id", convID, "error", err)
		history = nil
	}

	contexts := o.retrieveContext(ctx, req.TenantID, req.Text)
	o.contextGauge.Record(ctx, int64(len(contexts)))

	messages := make([]conversation.Message, 0, len(history)+2)
	messages = append(messages, conversation.Message{
		Role:    conversation.RoleSystem,
		Content: buildSystemPrompt(contexts),
	})
	messages = append(messages, history...)
	userMsg := conversation.Message{Role: conversation.RoleUser, Content: req.Text}
	messages = append(messages, userMsg)

	resp, err := o.llm.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Tools:       o.tools.Definitions(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		o.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	toolResults := o.executeTools(ctx, p, resp.ToolCalls)

	reply := resp.Reply
	if reply == "" && len(toolResults) > 0 {
		reply = summarizeToolResults(toolResults)
	}

	// Commit the turn. User first, then assistant, so the stored order
	// matches what the model saw.
	if err := o.memory.Append(ctx, convID, userMsg); err != nil {
		slog.Warn("memory append failed", "conversation_id", convID, "role", "user", "error", err)
	} else if err := o.memory.Append(ctx, convID, conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: reply,
	}); err != nil {
		slog.Warn("memory append failed", "conversation_id", convID, "role", "assistant", "error", err)
	}

	o.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	o.turnDuration.Record(ctx, time.Since(start).Seconds())
	slog.Info("turn completed",
		"tenant_id", req.TenantID,
		"conversation_id", convID,
		"tool_calls", len(resp.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds())

	return &conversation.TurnResult{Reply: reply, ToolResults: toolResults}, nil
}

func validateTurn(p *Principal, req *conversation.TurnRequest) error {
	if p == nil {
		return domain.ErrUnauthorized
	}
	if req.TenantID == "" {
		req.TenantID = p.TenantID
	}
	if req.TenantID != p.TenantID {
		return fmt.Errorf("%w: tenant mismatch", domain.ErrUnauthorized)
	}
	if req.UserID == "" {
		req.UserID = p.Subject
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text is required", domain.ErrValidation)
	}
	return nil
}

// retrieveContext fetches grounding passages. Retrieval failures degrade
// the turn to an ungrounded answer rather than aborting it.
func (o *Orchestrator) retrieveContext(ctx context.Context, tenantID, query string) []string {
	results, err := o.retrieval.Search(ctx, tenantID, query, o.cfg.Retrieval.TopK)
	if err != nil {
		slog.Warn("context retrieval failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	return ContextTexts(results)
}

// executeTools runs the model's tool calls one at a time, in order. A
// failed call is recorded in its result and never aborts the turn or the
// remaining calls.
func (o *Orchestrator) executeTools(ctx context.Context, p *Principal, calls []conversation.ToolCall) []conversation.ToolResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]conversation.ToolResult, 0, len(calls))
	for _, call := range calls {
		ctx, span := orchTracer.Start(ctx, "orchestrator.tool",
			trace.WithAttributes(attribute.String("tool.name", call.Name)))

		res := conversation.ToolResult{Tool: call.Name}
		out, err := o.tools.Execute(ctx, p, call)
		if err != nil {
			res.Error = err.Error()
			slog.Warn("tool call failed", "tool", call.Name, "tenant_id", p.TenantID, "error", err)
			o.toolCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", call.Name), attribute.String("outcome", "error")))
		} else {
			res.Result = out
			o.toolCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", call.Name), attribute.String("outcome", "ok")))
		}
		results = append(results, res)
		span.End()
	}
	return results
}

// systemPersona frames every completion. The context block below it is
// the only tenant-specific knowledge the model receives.
const systemPersona = "You are a helpful hotel concierge. Answer guest questions " +
	"using the provided context when it is relevant, and use the available " +
	"tools for requests that require action. Be concise and courteous. If " +
	"you do not know something, say so rather than guessing."

func buildSystemPrompt(contexts []string) string {
	if len(contexts) == 0 {
		return systemPersona
	}
	var b strings.Builder
	b.WriteString(systemPersona)
	b.WriteString("\n\nContext:\n")
	for _, c := range contexts {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}

// summarizeToolResults gives the caller something to show when the model
// returned tool calls but no prose.
func summarizeToolResults(results []conversation.ToolResult) string {
	for _, r := range results {
		if r.Error == "" {
			if data, err := json.Marshal(r.Result); err == nil {
				return fmt.Sprintf("Done. %s returned %s.", r.Tool, data)
			}
		}
	}
	return "I've started working on that request."
}

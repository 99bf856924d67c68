package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/booking"
	"github.com/stayline/concierge/internal/domain/conversation"
	"github.com/stayline/concierge/internal/port/bookingsource"
	"github.com/stayline/concierge/internal/port/llm"
	"github.com/stayline/concierge/internal/port/messagequeue"
)

// ToolHandler executes one validated tool call. Args have already passed
// schema validation; the principal scopes the call to its tenant.
type ToolHandler func(ctx context.Context, p *Principal, args map[string]any) (any, error)

// Field describes one schema field of a tool.
type Field struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool
	Enum        []string
}

// ToolSchema is the declarative argument schema for a tool. Unknown
// argument keys are rejected, so the model cannot smuggle extra state
// into a handler.
type ToolSchema struct {
	Fields []Field
}

// Validate checks args against the schema and names every offending
// field in the error. All failures wrap domain.ErrValidation.
func (s ToolSchema) Validate(args map[string]any) error {
	var problems []string

	byName := make(map[string]Field, len(s.Fields))
	for _, f := range s.Fields {
		byName[f.Name] = f
		if f.Required {
			if _, ok := args[f.Name]; !ok {
				problems = append(problems, fmt.Sprintf("missing required field %q", f.Name))
			}
		}
	}

	for name, val := range args {
		f, ok := byName[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown field %q", name))
			continue
		}
		if val == nil {
			if f.Required {
				problems = append(problems, fmt.Sprintf("field %q must not be null", name))
			}
			continue
		}
		if !typeMatches(f.Type, val) {
			problems = append(problems, fmt.Sprintf("field %q must be a %s", name, f.Type))
			continue
		}
		if len(f.Enum) > 0 {
			str, _ := val.(string)
			if !containsString(f.Enum, str) {
				problems = append(problems, fmt.Sprintf("field %q must be one of %s", name, strings.Join(f.Enum, ", ")))
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// typeMatches checks a decoded JSON value against a schema type name.
// JSON numbers decode as float64, so integer accepts whole floats.
func typeMatches(typ string, val any) bool {
	switch typ {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		_, ok := val.(float64)
		return ok
	case "integer":
		f, ok := val.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Tool bundles a name, model-facing description, argument schema, and
// handler.
type Tool struct {
	Name        string
	Description string
	Schema      ToolSchema
	Handler     ToolHandler
}

// ToolRegistry holds the tools exposed to the model and runs validated
// calls. Registration happens at startup; Execute is read-only after
// that, so concurrent turns share one registry safely.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *ToolRegistry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Definitions returns the tool definitions in registration order, for
// the chat completion request.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaParameters(t.Schema),
		})
	}
	return defs
}

// schemaParameters renders a ToolSchema as a JSON-schema object for the
// OpenAI-style tools array.
func schemaParameters(s ToolSchema) map[string]any {
	props := make(map[string]any, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		p := map[string]any{"type": f.Type}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	params := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}

// Execute runs one tool call for the principal. The checks run in a
// fixed order: unknown tool, then schema validation, then the handler.
// Handler failures wrap domain.ErrToolExecution unless the handler
// already returned a domain sentinel.
func (r *ToolRegistry) Execute(ctx context.Context, p *Principal, call conversation.ToolCall) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrToolNotFound, call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := t.Schema.Validate(args); err != nil {
		return nil, fmt.Errorf("tool %q: %w", call.Name, err)
	}

	result, err := t.Handler(ctx, p, args)
	if err != nil {
		if isDomainSentinel(err) {
			return nil, fmt.Errorf("tool %q: %w", call.Name, err)
		}
		return nil, fmt.Errorf("%w: %q: %w", domain.ErrToolExecution, call.Name, err)
	}
	return result, nil
}

func isDomainSentinel(err error) bool {
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrValidation, domain.ErrQueue,
		domain.ErrRetrieval, domain.ErrUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// --- Built-in concierge tools ---

// RegisterBuiltins wires the standard concierge tool set: queue-backed
// guest requests, booking lookups, and knowledge base search.
func RegisterBuiltins(r *ToolRegistry, queue messagequeue.Queue, bookings bookingsource.Source, retrieval *RetrievalService) {
	r.Register(createTicketTool(queue))
	r.Register(requestServiceTool(queue))
	r.Register(escalateTool(queue))
	r.Register(getBookingTool(bookings))
	r.Register(checkAvailabilityTool(bookings))
	r.Register(searchKBTool(retrieval))
}

// publishTicket marshals a ticket payload and publishes it. The tool
// returns queued immediately; the ops worker persists the ticket later.
func publishTicket(ctx context.Context, queue messagequeue.Queue, subject string, payload messagequeue.TicketPayload) (any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket: %w", err)
	}
	if err := queue.Publish(ctx, subject, data); err != nil {
		return nil, fmt.Errorf("%w: publish %s: %w", domain.ErrQueue, subject, err)
	}
	slog.Info("guest request queued", "subject", subject, "ticket_id", payload.TicketID, "tenant_id", payload.TenantID)
	return map[string]any{
		"ticket_id": payload.TicketID,
		"status":    "queued",
	}, nil
}

func createTicketTool(queue messagequeue.Queue) *Tool {
	return &Tool{
		Name:        "createTicket",
		Description: "Create a maintenance or issue ticket for hotel staff. Use when the guest reports a problem with their room or the facilities.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "subject", Type: "string", Description: "Short summary of the issue", Required: true},
			{Name: "detail", Type: "string", Description: "Full description of the issue"},
			{Name: "priority", Type: "string", Description: "Urgency of the issue", Enum: []string{"low", "normal", "high"}},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			payload := messagequeue.TicketPayload{
				TicketID: uuid.NewString(),
				TenantID: p.TenantID,
				Kind:     booking.KindTicket,
				GuestID:  p.Subject,
				Subject:  stringArg(args, "subject"),
				Detail:   stringArg(args, "detail"),
				Priority: stringArg(args, "priority"),
			}
			return publishTicket(ctx, queue, messagequeue.SubjectOpsTicket, payload)
		},
	}
}

func requestServiceTool(queue messagequeue.Queue) *Tool {
	return &Tool{
		Name:        "requestService",
		Description: "Request a hotel service for the guest, such as housekeeping, room service, or a wake-up call.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "service", Type: "string", Description: "The service being requested", Required: true},
			{Name: "detail", Type: "string", Description: "Extra instructions for staff"},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			payload := messagequeue.TicketPayload{
				TicketID: uuid.NewString(),
				TenantID: p.TenantID,
				Kind:     booking.KindService,
				GuestID:  p.Subject,
				Subject:  stringArg(args, "service"),
				Detail:   stringArg(args, "detail"),
			}
			return publishTicket(ctx, queue, messagequeue.SubjectOpsService, payload)
		},
	}
}

func escalateTool(queue messagequeue.Queue) *Tool {
	return &Tool{
		Name:        "escalateToHuman",
		Description: "Hand the conversation to a human concierge. Use when the guest is upset, asks for a person, or the request is outside your abilities.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "reason", Type: "string", Description: "Why the conversation needs a human", Required: true},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			payload := messagequeue.TicketPayload{
				TicketID: uuid.NewString(),
				TenantID: p.TenantID,
				Kind:     booking.KindEscalation,
				GuestID:  p.Subject,
				Subject:  stringArg(args, "reason"),
				Priority: "high",
			}
			return publishTicket(ctx, queue, messagequeue.SubjectOpsEscalation, payload)
		},
	}
}

func getBookingTool(bookings bookingsource.Source) *Tool {
	return &Tool{
		Name:        "getBooking",
		Description: "Look up the guest's current reservation: room, dates, and status.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "guestId", Type: "string", Description: "Guest to look up; defaults to the caller"},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			// Lookups stay inside the caller's tenant regardless of the
			// guest id supplied.
			guestID := stringArg(args, "guestId")
			if guestID == "" {
				guestID = p.Subject
			}
			b, err := bookings.GetBooking(ctx, p.TenantID, guestID)
			if errors.Is(err, domain.ErrNotFound) {
				// The result shape is stable either way so the model can
				// always read the booking key.
				return map[string]any{"found": false, "booking": nil}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("get booking: %w", err)
			}
			return map[string]any{"found": true, "booking": b}, nil
		},
	}
}

func checkAvailabilityTool(bookings bookingsource.Source) *Tool {
	return &Tool{
		Name:        "checkAvailability",
		Description: "Check how many rooms of a given type are free on a date.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "room_type", Type: "string", Description: "Room category, e.g. standard, deluxe, suite", Required: true},
			{Name: "date", Type: "string", Description: "Date to check, formatted YYYY-MM-DD", Required: true},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			roomType := stringArg(args, "room_type")
			date, err := time.Parse("2006-01-02", stringArg(args, "date"))
			if err != nil {
				return nil, fmt.Errorf("%w: date must be formatted YYYY-MM-DD", domain.ErrValidation)
			}

			free, err := bookings.CheckAvailability(ctx, p.TenantID, roomType, date)
			if errors.Is(err, domain.ErrNotFound) {
				return map[string]any{"room_type": roomType, "available": 0, "known_type": false}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("check availability: %w", err)
			}
			return map[string]any{"room_type": roomType, "available": free, "known_type": true}, nil
		},
	}
}

func searchKBTool(retrieval *RetrievalService) *Tool {
	return &Tool{
		Name:        "searchKB",
		Description: "Search the hotel's knowledge base for policies, amenities, hours, and local information.",
		Schema: ToolSchema{Fields: []Field{
			{Name: "query", Type: "string", Description: "What to look up", Required: true},
			{Name: "top_k", Type: "integer", Description: "Number of passages to return"},
		}},
		Handler: func(ctx context.Context, p *Principal, args map[string]any) (any, error) {
			topK := 0
			if v, ok := args["top_k"].(float64); ok {
				topK = int(v)
			}
			results, err := retrieval.Search(ctx, p.TenantID, stringArg(args, "query"), topK)
			if err != nil {
				return nil, err
			}
			return map[string]any{"passages": ContextTexts(results)}, nil
		},
	}
}

// stringArg reads an optional string argument, returning "" when absent.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stayline/concierge/internal/domain/booking"
	"github.com/stayline/concierge/internal/port/messagequeue"
)

// TicketStore persists guest-request tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *booking.Ticket) error
}

// OpsService is the queue consumer for guest requests raised by tools.
// Delivery is at least once; the store insert is idempotent on ticket id.
type OpsService struct {
	store TicketStore
}

// NewOpsService creates an OpsService.
func NewOpsService(store TicketStore) *OpsService {
	return &OpsService{store: store}
}

// HandleTicket processes one ops.* message. Malformed payloads are
// logged and acked; store failures are returned for redelivery.
func (s *OpsService) HandleTicket(ctx context.Context, subject string, data []byte) error {
	var payload messagequeue.TicketPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("ops payload malformed", "subject", subject, "error", err)
		return nil
	}

	t := &booking.Ticket{
		ID:        payload.TicketID,
		TenantID:  payload.TenantID,
		Kind:      payload.Kind,
		GuestID:   payload.GuestID,
		Subject:   payload.Subject,
		Detail:    payload.Detail,
		Priority:  payload.Priority,
		CreatedAt: time.Now(),
	}
	if err := t.Validate(); err != nil {
		slog.Error("ops ticket invalid", "subject", subject, "ticket_id", payload.TicketID, "error", err)
		return nil
	}

	if err := s.store.CreateTicket(ctx, t); err != nil {
		slog.Warn("ops ticket persist failed, will redeliver", "ticket_id", t.ID, "error", err)
		return err
	}

	slog.Info("ops ticket persisted", "ticket_id", t.ID, "tenant_id", t.TenantID, "kind", t.Kind)
	return nil
}

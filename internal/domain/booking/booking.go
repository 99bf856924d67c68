// Package booking provides the domain model for reservations and the
// guest-request tickets raised by concierge tools.
package booking

import (
	"fmt"
	"time"

	"github.com/stayline/concierge/internal/domain"
)

// Booking is a reservation record looked up by the getBooking tool.
type Booking struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	GuestID   string    `json:"guest_id"`
	GuestName string    `json:"guest_name"`
	RoomType  string    `json:"room_type"`
	RoomNo    string    `json:"room_no,omitempty"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Status    string    `json:"status"`
}

// Ticket kinds raised by the queue-backed concierge tools.
const (
	KindTicket     = "ticket"
	KindService    = "service"
	KindEscalation = "escalation"
)

// Ticket is a guest request persisted by the ops worker after the
// originating tool call has already returned.
type Ticket struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Kind      string    `json:"kind"`
	GuestID   string    `json:"guest_id,omitempty"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail,omitempty"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields the ops worker requires before persisting.
func (t *Ticket) Validate() error {
	if t.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", domain.ErrValidation)
	}
	if t.Subject == "" {
		return fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	switch t.Kind {
	case KindTicket, KindService, KindEscalation:
	default:
		return fmt.Errorf("%w: invalid kind %q", domain.ErrValidation, t.Kind)
	}
	return nil
}

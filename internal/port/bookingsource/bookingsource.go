// Package bookingsource defines the read-only booking lookup port used
// by the getBooking and checkAvailability tools.
package bookingsource

import (
	"context"
	"time"

	"github.com/stayline/concierge/internal/domain/booking"
)

// Source is the port interface for booking data.
type Source interface {
	// GetBooking returns the most recent reservation for a guest within
	// the tenant, or domain.ErrNotFound.
	GetBooking(ctx context.Context, tenantID, guestID string) (*booking.Booking, error)

	// CheckAvailability reports how many rooms of roomType are free on
	// the given date.
	CheckAvailability(ctx context.Context, tenantID, roomType string, date time.Time) (int, error)
}

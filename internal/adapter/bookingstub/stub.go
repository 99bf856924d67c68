// Package bookingstub provides an in-memory bookingsource implementation
// for development without a database and for tests.
package bookingstub

import (
	"context"
	"sync"
	"time"

	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/booking"
	"github.com/stayline/concierge/internal/port/bookingsource"
)

// Source holds bookings and room counts in memory.
type Source struct {
	mu        sync.RWMutex
	bookings  []booking.Booking
	inventory map[string]int // tenantID|roomType -> total rooms
}

// New creates an empty stub source.
func New() *Source {
	return &Source{inventory: make(map[string]int)}
}

// AddBooking seeds a reservation.
func (s *Source) AddBooking(b booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, b)
}

// SetInventory seeds the total room count for a tenant/room type.
func (s *Source) SetInventory(tenantID, roomType string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[tenantID+"|"+roomType] = total
}

// GetBooking returns the latest reservation for the guest, or domain.ErrNotFound.
func (s *Source) GetBooking(_ context.Context, tenantID, guestID string) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *booking.Booking
	for i := range s.bookings {
		b := &s.bookings[i]
		if b.TenantID != tenantID || b.GuestID != guestID {
			continue
		}
		if latest == nil || b.CheckIn.After(latest.CheckIn) {
			latest = b
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	out := *latest
	return &out, nil
}

// CheckAvailability returns inventory minus confirmed bookings that
// overlap the date.
func (s *Source) CheckAvailability(_ context.Context, tenantID, roomType string, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, ok := s.inventory[tenantID+"|"+roomType]
	if !ok {
		return 0, domain.ErrNotFound
	}
	used := 0
	for i := range s.bookings {
		b := &s.bookings[i]
		if b.TenantID == tenantID && b.RoomType == roomType && b.Status == "confirmed" &&
			!b.CheckIn.After(date) && b.CheckOut.After(date) {
			used++
		}
	}
	free := total - used
	if free < 0 {
		free = 0
	}
	return free, nil
}

// Compile-time check that Source implements the port.
var _ bookingsource.Source = (*Source)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/booking"
)

// Store implements the bookingsource port and ticket persistence on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetBooking returns the most recent reservation for a guest within the
// tenant, or domain.ErrNotFound.
func (s *Store) GetBooking(ctx context.Context, tenantID, guestID string) (*booking.Booking, error) {
	const q = `
		SELECT id, tenant_id, guest_id, guest_name, room_type, room_no, check_in, check_out, status
		FROM bookings
		WHERE tenant_id = $1 AND guest_id = $2
		ORDER BY check_in DESC
		LIMIT 1`

	var b booking.Booking
	err := s.pool.QueryRow(ctx, q, tenantID, guestID).Scan(
		&b.ID, &b.TenantID, &b.GuestID, &b.GuestName,
		&b.RoomType, &b.RoomNo, &b.CheckIn, &b.CheckOut, &b.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

// CheckAvailability reports how many rooms of roomType are free on the
// given date: inventory minus overlapping confirmed bookings.
func (s *Store) CheckAvailability(ctx context.Context, tenantID, roomType string, date time.Time) (int, error) {
	const q = `
		SELECT ri.total - COUNT(b.id)
		FROM room_inventory ri
		LEFT JOIN bookings b
		  ON b.tenant_id = ri.tenant_id
		 AND b.room_type = ri.room_type
		 AND b.status = 'confirmed'
		 AND b.check_in <= $3 AND b.check_out > $3
		WHERE ri.tenant_id = $1 AND ri.room_type = $2
		GROUP BY ri.total`

	var free int
	err := s.pool.QueryRow(ctx, q, tenantID, roomType, date).Scan(&free)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("check availability: %w", err)
	}
	if free < 0 {
		free = 0
	}
	return free, nil
}

// CreateTicket persists a guest-request ticket raised by the ops worker.
// Insertion is idempotent on the ticket id so queue redelivery is safe.
func (s *Store) CreateTicket(ctx context.Context, t *booking.Ticket) error {
	if err := t.Validate(); err != nil {
		return err
	}

	const q = `
		INSERT INTO tickets (id, tenant_id, kind, guest_id, subject, detail, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	if t.Priority == "" {
		t.Priority = "normal"
	}
	if t.Status == "" {
		t.Status = "open"
	}

	_, err := s.pool.Exec(ctx, q, t.ID, t.TenantID, t.Kind, t.GuestID, t.Subject, t.Detail, t.Priority, t.Status)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

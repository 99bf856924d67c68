package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stayline/concierge/internal/adapter/postgres"
	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/booking"
)

func newTestStore(t *testing.T) (*postgres.Store, func(ctx context.Context, sql string, args ...any)) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	exec := func(ctx context.Context, sql string, args ...any) {
		t.Helper()
		if _, err := pool.Exec(ctx, sql, args...); err != nil {
			t.Fatalf("exec %q: %v", sql, err)
		}
	}

	// Each test run works in its own tenant so parallel CI jobs sharing
	// one database do not collide.
	return postgres.NewStore(pool), exec
}

func testTenant(t *testing.T) string {
	return fmt.Sprintf("t-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestStore_GetBooking(t *testing.T) {
	store, exec := newTestStore(t)
	ctx := context.Background()
	tenant := testTenant(t)

	exec(ctx, `INSERT INTO bookings (id, tenant_id, guest_id, guest_name, room_type, room_no, check_in, check_out, status)
		VALUES ($1, $2, 'guest-1', 'Ada', 'deluxe', '1204', $3, $4, 'confirmed')`,
		uuid.NewString(), tenant, time.Now(), time.Now().Add(48*time.Hour))

	b, err := store.GetBooking(ctx, tenant, "guest-1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if b.RoomType != "deluxe" || b.RoomNo != "1204" {
		t.Errorf("unexpected booking %+v", b)
	}

	if _, err := store.GetBooking(ctx, tenant, "guest-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// Another tenant's guest id never resolves here.
	if _, err := store.GetBooking(ctx, tenant+"-other", "guest-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected cross-tenant not found, got %v", err)
	}
}

func TestStore_CheckAvailability(t *testing.T) {
	store, exec := newTestStore(t)
	ctx := context.Background()
	tenant := testTenant(t)
	date := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	exec(ctx, `INSERT INTO room_inventory (tenant_id, room_type, total) VALUES ($1, 'suite', 3)`, tenant)
	exec(ctx, `INSERT INTO bookings (id, tenant_id, guest_id, guest_name, room_type, check_in, check_out, status)
		VALUES ($1, $2, 'guest-1', 'Ada', 'suite', $3, $4, 'confirmed')`,
		uuid.NewString(), tenant, date.Add(-24*time.Hour), date.Add(24*time.Hour))
	exec(ctx, `INSERT INTO bookings (id, tenant_id, guest_id, guest_name, room_type, check_in, check_out, status)
		VALUES ($1, $2, 'guest-2', 'Grace', 'suite', $3, $4, 'cancelled')`,
		uuid.NewString(), tenant, date.Add(-24*time.Hour), date.Add(24*time.Hour))

	free, err := store.CheckAvailability(ctx, tenant, "suite", date)
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if free != 2 {
		t.Errorf("expected 2 free suites, got %d", free)
	}

	if _, err := store.CheckAvailability(ctx, tenant, "igloo", date); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown room type, got %v", err)
	}
}

func TestStore_CreateTicketIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tenant := testTenant(t)

	ticket := &booking.Ticket{
		ID:       uuid.NewString(),
		TenantID: tenant,
		Kind:     booking.KindTicket,
		GuestID:  "guest-1",
		Subject:  "no hot water",
		Priority: "high",
	}
	if err := store.CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	// Queue redelivery replays the same id.
	if err := store.CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("redelivered CreateTicket failed: %v", err)
	}

	if err := store.CreateTicket(ctx, &booking.Ticket{ID: "bad", TenantID: tenant}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

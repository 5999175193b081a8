package storage

import (
	"context"
	"os"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

// DB-backed check of the compare-and-set; skipped unless PG_TEST_DSN is set.
func TestPostgresConditionalTransition(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set; skipping postgres-backed test")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	o := newWaitingOrder("pg_cas_1")
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.db.Exec(`DELETE FROM orders WHERE id = 'pg_cas_1'`)

	got, ok, err := s.ConditionalTransition(ctx, o.ID, models.StatusWaiting, TransitionPatch{
		Status: models.StatusAccepted, DriverID: "d1", DriverName: "bob",
	})
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	if got.DriverID != "d1" || got.Status != models.StatusAccepted {
		t.Fatalf("unexpected committed order: %+v", got)
	}

	_, ok, err = s.ConditionalTransition(ctx, o.ID, models.StatusWaiting, TransitionPatch{
		Status: models.StatusAccepted, DriverID: "d2", DriverName: "eve",
	})
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if ok {
		t.Fatal("second transition committed; predicate not enforced")
	}
}

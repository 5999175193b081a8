package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rooms"
	"github.com/example/ride-dispatch/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine() (*Engine, *notify.MemoryBroker) {
	broker := notify.NewMemoryBroker()
	log := discardLogger()
	hub := rooms.NewHub(log)
	e := NewEngine(storage.NewMemoryStore(), broker, hub, pricing.DefaultRates(), time.Second, log)
	return e, broker
}

func createWaiting(t *testing.T, e *Engine) string {
	t.Helper()
	id, err := e.CreateOrder(context.Background(), CreateRequest{
		ClientID:    "c1",
		ClientName:  "alice",
		Origin:      models.Coord{Lat: 48.81, Lon: 2.36},
		Destination: models.Coord{Lat: 48.85, Lon: 2.30},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func TestCreateAndEnrichComputesDistanceAndPrice(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine()
	id := createWaiting(t, e)

	if err := e.EnrichOrder(ctx, id, DetailsRequest{
		PassengerCount: 2,
		VehicleType:    models.VehicleCar,
		DepartureTime:  time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	o, err := e.GetOrder(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Distance <= 0 {
		t.Fatalf("expected positive distance, got %f", o.Distance)
	}
	if o.Price != o.Distance*0.5 {
		t.Fatalf("expected price = distance * 0.5, got price=%f distance=%f", o.Price, o.Distance)
	}
}

func TestEnrichRejectsUnknownVehicle(t *testing.T) {
	e, _ := testEngine()
	id := createWaiting(t, e)
	err := e.EnrichOrder(context.Background(), id, DetailsRequest{
		PassengerCount: 1,
		VehicleType:    models.VehicleType("submarine"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestConcurrentAcceptExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine()
	id := createWaiting(t, e)
	if err := e.EnrichOrder(ctx, id, DetailsRequest{PassengerCount: 1, VehicleType: models.VehicleCar}); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	const drivers = 8
	var wg sync.WaitGroup
	results := make(chan error, drivers)
	for i := 0; i < drivers; i++ {
		driverID := fmt.Sprintf("d%d", i)
		wg.Add(1)
		go func(did string) {
			defer wg.Done()
			results <- e.Accept(ctx, id, did, "driver "+did)
		}(driverID)
	}
	wg.Wait()
	close(results)

	var accepted, taken int
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrAlreadyTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || taken != drivers-1 {
		t.Fatalf("expected 1 accepted / %d taken, got %d / %d", drivers-1, accepted, taken)
	}

	o, err := e.GetOrder(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != models.StatusAccepted || o.DriverID == "" {
		t.Fatalf("unexpected final order: status=%s driver=%q", o.Status, o.DriverID)
	}
}

func TestAcceptPublishesPushEvent(t *testing.T) {
	ctx := context.Background()
	e, broker := testEngine()
	id := createWaiting(t, e)

	ch, cancel := broker.Subscribe(ctx, notify.ClientTopic("c1"))
	defer cancel()

	if err := e.Accept(ctx, id, "d1", "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != models.EventOrderAccepted || ev.OrderID != id || ev.DriverName != "bob" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no push event delivered")
	}
}

func TestCancelPreventsAcceptance(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine()
	id := createWaiting(t, e)

	if err := e.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := e.Accept(ctx, id, "d1", "bob")
	if !errors.Is(err, ErrAlreadyTaken) && !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected AlreadyTaken or NotFound after cancel, got %v", err)
	}
}

func TestCancelAcceptedOrderRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine()
	id := createWaiting(t, e)
	if err := e.Accept(ctx, id, "d1", "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.Cancel(ctx, id); !errors.Is(err, ErrAlreadyTaken) {
		t.Fatalf("expected ErrAlreadyTaken cancelling accepted order, got %v", err)
	}
}

func TestAcceptUnknownOrderNotFound(t *testing.T) {
	e, _ := testEngine()
	if err := e.Accept(context.Background(), "missing", "d1", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteClosesRoomAndSetsTimestamp(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine()
	id := createWaiting(t, e)
	if err := e.Accept(ctx, id, "d1", "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	member := &recordingMember{}
	e.Rooms().Join(id, member)

	done := time.Now()
	if err := e.CompleteRide(ctx, id, done); err != nil {
		t.Fatalf("complete: %v", err)
	}

	o, err := e.GetOrder(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != models.StatusCompleted || o.CompletedAt == nil {
		t.Fatalf("unexpected final order: %+v", o)
	}

	evs := member.got()
	if len(evs) != 1 || evs[0].Type != models.EventRideEnded {
		t.Fatalf("expected single ride_ended, got %+v", evs)
	}
	if e.Rooms().Members(id) != 0 {
		t.Fatal("room not released after completion")
	}
}

type recordingMember struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *recordingMember) Deliver(ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *recordingMember) got() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	return out
}

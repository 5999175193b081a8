package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/matching"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rooms"
	"github.com/example/ride-dispatch/internal/storage"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrAlreadyTaken = errors.New("order already taken")
	ErrValidation   = errors.New("invalid request")
)

// Stream is the optional lifecycle event sink (Kafka in production).
type Stream interface {
	PublishLifecycle(eventType string, o *models.Order) error
}

// Engine wires the order store, matching view, notifier and room hub.
// It holds no cross-request locks: the store's conditional transition is
// the only synchronization point, so multiple instances can run safely.
type Engine struct {
	store  storage.OrderStore
	view   *matching.View
	broker notify.Broker
	rooms  *rooms.Hub
	rates  pricing.Rates
	stream Stream
	log    *slog.Logger
	checks *StatusChecks

	// Distance is the pure distance function applied at creation.
	Distance func(origin, destination models.Coord) float64
}

func NewEngine(store storage.OrderStore, broker notify.Broker, hub *rooms.Hub, rates pricing.Rates, pollInterval time.Duration, log *slog.Logger) *Engine {
	e := &Engine{
		store:    store,
		view:     &matching.View{Store: store},
		broker:   broker,
		rooms:    hub,
		rates:    rates,
		log:      log,
		Distance: geo.DistanceKm,
	}
	e.checks = NewStatusChecks(store, broker, pollInterval, log)
	return e
}

// SetStream attaches the lifecycle event producer. Publishing is
// best-effort; stream failures never fail the triggering operation.
func (e *Engine) SetStream(s Stream) { e.stream = s }

// Rooms exposes the room broadcaster for the transport layer.
func (e *Engine) Rooms() *rooms.Hub { return e.rooms }

// Broker exposes the push channel broker for the transport layer.
func (e *Engine) Broker() notify.Broker { return e.broker }

type CreateRequest struct {
	ClientID    string
	ClientName  string
	Origin      models.Coord
	Destination models.Coord
}

// CreateOrder records a new waiting order with its distance fixed at
// creation time, and returns the new order id.
func (e *Engine) CreateOrder(ctx context.Context, req CreateRequest) (string, error) {
	if req.ClientID == "" {
		return "", fmt.Errorf("%w: missing client id", ErrValidation)
	}
	if req.Origin == (models.Coord{}) || req.Destination == (models.Coord{}) {
		return "", fmt.Errorf("%w: missing coordinates", ErrValidation)
	}

	o := &models.Order{
		ID:          uuid.NewString(),
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		Origin:      req.Origin,
		Destination: req.Destination,
		Distance:    e.Distance(req.Origin, req.Destination),
		Status:      models.StatusWaiting,
		CreatedAt:   time.Now(),
	}
	if err := e.store.Create(ctx, o); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	observability.OrdersCreated.Inc()
	e.publishLifecycle(models.EventOrderCreated, o)
	e.log.Info("order created", "order_id", o.ID, "client_id", o.ClientID, "distance_km", o.Distance)
	return o.ID, nil
}

type DetailsRequest struct {
	PassengerCount int
	VehicleType    models.VehicleType
	DepartureTime  time.Time
}

// EnrichOrder finalizes passenger count, vehicle type and departure time,
// and computes the price. Only waiting orders can be enriched.
func (e *Engine) EnrichOrder(ctx context.Context, orderID string, req DetailsRequest) error {
	if req.PassengerCount <= 0 {
		return fmt.Errorf("%w: passenger count must be positive", ErrValidation)
	}
	if !req.VehicleType.Valid() {
		return fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, req.VehicleType)
	}

	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load order: %w", err)
	}

	price, err := e.rates.Quote(o.Distance, req.VehicleType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := e.store.UpdateDetails(ctx, orderID, storage.DetailsPatch{
		PassengerCount: req.PassengerCount,
		VehicleType:    req.VehicleType,
		DepartureTime:  req.DepartureTime,
		Price:          price,
	}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update details: %w", err)
	}
	e.log.Info("order enriched", "order_id", orderID, "vehicle_type", req.VehicleType, "price", price)
	return nil
}

// PendingOrders lists waiting orders matching the driver's vehicle type.
func (e *Engine) PendingOrders(ctx context.Context, vehicle models.VehicleType) ([]models.PendingOrder, error) {
	if !vehicle.Valid() {
		return nil, fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, vehicle)
	}
	return e.view.PendingFor(ctx, vehicle)
}

// GetOrder returns any order, including terminal ones kept for history.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := e.store.Get(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return o, err
}

// Accept resolves a driver's claim on a waiting order. Exactly one driver
// wins: the claim is a single database-level compare-and-set, so losers get
// ErrAlreadyTaken no matter how many instances race.
func (e *Engine) Accept(ctx context.Context, orderID, driverID, driverName string) error {
	if driverID == "" {
		return fmt.Errorf("%w: missing driver id", ErrValidation)
	}
	o, committed, err := e.store.ConditionalTransition(ctx, orderID, models.StatusWaiting, storage.TransitionPatch{
		Status:     models.StatusAccepted,
		DriverID:   driverID,
		DriverName: driverName,
	})
	if err != nil {
		return fmt.Errorf("accept order: %w", err)
	}
	if !committed {
		observability.AcceptConflicts.Inc()
		if _, gerr := e.store.Get(ctx, orderID); errors.Is(gerr, storage.ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyTaken
	}

	observability.OrdersAccepted.Inc()
	e.notifyAccepted(ctx, o)
	e.publishLifecycle(models.EventOrderAccepted, o)
	e.log.Info("order accepted", "order_id", o.ID, "driver_id", driverID)
	return nil
}

// Cancel terminates a waiting order. Accepted orders cannot be cancelled
// by the client.
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	o, committed, err := e.store.ConditionalTransition(ctx, orderID, models.StatusWaiting, storage.TransitionPatch{
		Status: models.StatusCancelled,
	})
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if !committed {
		if _, gerr := e.store.Get(ctx, orderID); errors.Is(gerr, storage.ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyTaken
	}
	observability.OrdersCancelled.Inc()
	e.publishLifecycle(models.EventOrderCancelled, o)
	e.log.Info("order cancelled", "order_id", orderID)
	return nil
}

// CompleteRide finalizes an accepted order, closes its chat room and
// records the completion timestamp.
func (e *Engine) CompleteRide(ctx context.Context, orderID string, completedAt time.Time) error {
	o, committed, err := e.store.ConditionalTransition(ctx, orderID, models.StatusAccepted, storage.TransitionPatch{
		Status:      models.StatusCompleted,
		CompletedAt: &completedAt,
	})
	if err != nil {
		return fmt.Errorf("complete ride: %w", err)
	}
	if !committed {
		if _, gerr := e.store.Get(ctx, orderID); errors.Is(gerr, storage.ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyTaken
	}
	observability.OrdersCompleted.Inc()
	e.rooms.Close(orderID)
	e.publishLifecycle(models.EventOrderCompleted, o)
	e.log.Info("ride completed", "order_id", orderID, "completed_at", completedAt)
	return nil
}

// StartStatusCheck begins the recurring poll fallback for one
// (order, requester) pair. Starting a check never disturbs checks for
// other orders or requesters.
func (e *Engine) StartStatusCheck(orderID, requesterID string) error {
	if orderID == "" || requesterID == "" {
		return fmt.Errorf("%w: order id and requester id required", ErrValidation)
	}
	e.checks.Start(orderID, requesterID)
	return nil
}

// Shutdown stops all scheduled status checks.
func (e *Engine) Shutdown() { e.checks.StopAll() }

func (e *Engine) notifyAccepted(ctx context.Context, o *models.Order) {
	ev := models.Event{
		Type:       models.EventOrderAccepted,
		OrderID:    o.ID,
		DriverName: o.DriverName,
		At:         time.Now(),
	}
	// fire-and-forget: a missing subscriber falls back to polling
	if err := e.broker.Publish(ctx, notify.ClientTopic(o.ClientID), ev); err != nil {
		e.log.Warn("push notify failed", "order_id", o.ID, "client_id", o.ClientID, "error", err)
	}
}

func (e *Engine) publishLifecycle(eventType string, o *models.Order) {
	if e.stream == nil {
		return
	}
	if err := e.stream.PublishLifecycle(eventType, o); err != nil {
		e.log.Warn("lifecycle publish failed", "order_id", o.ID, "type", eventType, "error", err)
	}
}

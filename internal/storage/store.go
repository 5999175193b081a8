package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNotFound is returned for unknown order ids.
var ErrNotFound = errors.New("order not found")

// DetailsPatch carries the second client action: passenger count, vehicle
// type and departure time, plus the price derived from them.
type DetailsPatch struct {
	PassengerCount int
	VehicleType    models.VehicleType
	DepartureTime  time.Time
	Price          float64
}

// TransitionPatch is the set of fields applied together with a status flip.
// Empty strings / nil timestamps leave the stored value untouched.
type TransitionPatch struct {
	Status      models.Status
	DriverID    string
	DriverName  string
	CompletedAt *time.Time
}

// OrderStore defines persistence operations for orders. ConditionalTransition
// is the only mutation path for status changes: it must be a single atomic
// compare-and-set against the backing store, never read-then-write.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	// UpdateDetails applies the patch only while the order is still waiting;
	// it returns ErrNotFound for unknown or no-longer-waiting orders.
	UpdateDetails(ctx context.Context, id string, p DetailsPatch) (*models.Order, error)
	// ConditionalTransition flips status only if the current status matches
	// expected. committed=false with a nil error means the predicate did not
	// hold (raced or terminal); the order return value is set on commit only.
	ConditionalTransition(ctx context.Context, id string, expected models.Status, p TransitionPatch) (o *models.Order, committed bool, err error)
	// PendingForVehicle reads the live set of waiting orders for one vehicle
	// type. Results must come from the store on every call, never a cache.
	PendingForVehicle(ctx context.Context, vehicle models.VehicleType) ([]*models.Order, error)
}

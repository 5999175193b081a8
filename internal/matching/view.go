package matching

import (
	"context"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// View is the driver-facing read-only projection of waiting orders.
// Every call goes to the live store: orders can be accepted between reads,
// so nothing here may be cached. Double-claims are resolved by the store's
// conditional transition, not by freshness of this view.
type View struct {
	Store storage.OrderStore
}

// PendingFor lists waiting orders for one vehicle type, in unspecified
// order. Driver clients typically re-sort by distance.
func (v *View) PendingFor(ctx context.Context, vehicle models.VehicleType) ([]models.PendingOrder, error) {
	orders, err := v.Store.PendingForVehicle(ctx, vehicle)
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, models.PendingOrder{
			ID:          o.ID,
			Origin:      o.Origin,
			Destination: o.Destination,
			Distance:    o.Distance,
			Price:       o.Price,
		})
	}
	return out, nil
}

package pricing

import (
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
)

// Rates maps vehicle type to price per km.
type Rates map[models.VehicleType]float64

// DefaultRates mirrors the production tariff table.
func DefaultRates() Rates {
	return Rates{
		models.VehicleCar:        0.5,
		models.VehicleVan:        0.8,
		models.VehicleHorseDrawn: 1.2,
	}
}

// UnknownVehicleError is returned when no rate exists for the requested type.
type UnknownVehicleError struct {
	Vehicle models.VehicleType
}

func (e *UnknownVehicleError) Error() string {
	return fmt.Sprintf("no rate for vehicle type %q", e.Vehicle)
}

// Quote computes the price for a ride as a pure function of distance and
// vehicle type. Unknown vehicle types are an error, never a silent zero.
func (r Rates) Quote(distanceKm float64, vehicle models.VehicleType) (float64, error) {
	rate, ok := r[vehicle]
	if !ok {
		return 0, &UnknownVehicleError{Vehicle: vehicle}
	}
	return distanceKm * rate, nil
}

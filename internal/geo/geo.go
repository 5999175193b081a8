package geo

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// Haversine great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// DistanceKm is the pure distance function the engine uses at order creation.
func DistanceKm(origin, destination models.Coord) float64 {
	return Haversine(origin.Lat, origin.Lon, destination.Lat, destination.Lon) / 1000.0
}

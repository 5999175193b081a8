package geo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// RouteClient performs road-distance lookups against an OSRM HTTP server.
// It can replace the haversine estimate at order creation when configured.
type RouteClient struct {
	Endpoint string
	Client   *http.Client
}

func NewRouteClient(endpoint string) *RouteClient {
	return &RouteClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// DistanceKm queries OSRM /route between points and returns road distance in km.
func (o *RouteClient) DistanceKm(from, to models.Coord) (float64, error) {
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}?overview=false
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	resp, err := o.Client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return 0, fmt.Errorf("osrm no route: %v", out.Code)
	}
	return out.Routes[0].Distance / 1000.0, nil
}

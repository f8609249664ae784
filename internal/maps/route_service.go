// README: Google Maps directions lookup for live route data on accepted orders.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"milkrun/internal/modules/order"
	"milkrun/internal/types"
)

// RouteService resolves driving routes between pickup and drop-off.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Estimate returns the driving route from origin to destination: decoded
// polyline points plus total distance and duration.
func (s *RouteService) Estimate(ctx context.Context, origin, dest types.Point) (*order.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	route := routes[0]
	leg := route.Legs[0]

	path, err := route.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	points := make([]types.Point, len(path))
	for i, p := range path {
		points[i] = types.Point{Lat: p.Lat, Lng: p.Lng}
	}

	return &order.Route{
		Polyline:       points,
		DistanceMeters: leg.Distance.Meters,
		Duration:       leg.Duration,
	}, nil
}

package stations

import (
	"context"
	"fmt"
	"math"

	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/routes"
)

// Planner answers "how do I get from here to there": nearest stations to
// the rider's coordinates plus the route between them.
type Planner struct {
	Locator Locator
	Graph   *routes.Graph
}

type JourneyStation struct {
	models.Station
	DistanceKm float64 `json:"distance_km"`
}

type JourneyPlan struct {
	Departure   JourneyStation   `json:"departure_station"`
	Destination JourneyStation   `json:"destination_station"`
	Route       *routes.TripInfo `json:"route_info,omitempty"`
	RouteError  string           `json:"route_error,omitempty"`
}

// Plan finds the nearest departure and destination stations and the
// minimum-transfer route between them. A route failure does not fail the
// plan; the rider still gets the stations, with the error noted.
func (p *Planner) Plan(ctx context.Context, start, dest models.Coord) (JourneyPlan, error) {
	from, fromDist, err := p.Locator.Nearest(ctx, start)
	if err != nil {
		return JourneyPlan{}, fmt.Errorf("departure station: %w", err)
	}
	to, toDist, err := p.Locator.Nearest(ctx, dest)
	if err != nil {
		return JourneyPlan{}, fmt.Errorf("destination station: %w", err)
	}

	plan := JourneyPlan{
		Departure:   JourneyStation{Station: from, DistanceKm: roundKm(fromDist)},
		Destination: JourneyStation{Station: to, DistanceKm: roundKm(toDist)},
	}

	info, err := p.Graph.TripInfo(from.ID, to.ID)
	if err != nil {
		plan.RouteError = err.Error()
		return plan, nil
	}
	plan.Route = &info
	return plan, nil
}

func roundKm(km float64) float64 { return math.Round(km*100) / 100 }

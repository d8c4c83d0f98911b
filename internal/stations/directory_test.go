package stations

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/routes"
)

// Cairo-ish coordinates keep the distances realistic.
func testDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	d.AddStation(models.Station{ID: 1, NameEN: "Sadat", Loc: models.Coord{Lat: 30.0444, Lon: 31.2357}})
	d.AddStation(models.Station{ID: 2, NameEN: "Opera", Loc: models.Coord{Lat: 30.0420, Lon: 31.2250}})
	d.AddStation(models.Station{ID: 3, NameEN: "Dokki", Loc: models.Coord{Lat: 30.0381, Lon: 31.2122}})
	d.AddStation(models.Station{ID: 4, NameEN: "Unmapped"}) // no coordinates yet
	return d
}

func TestHaversineKm(t *testing.T) {
	if d := HaversineKm(30.0, 31.0, 30.0, 31.0); d != 0 {
		t.Fatalf("zero distance = %f", d)
	}
	// One degree of latitude is about 111.2 km.
	d := HaversineKm(30.0, 31.0, 31.0, 31.0)
	if math.Abs(d-111.2) > 1 {
		t.Fatalf("one degree of latitude = %f km", d)
	}
}

func TestNearestPicksClosestStation(t *testing.T) {
	d := testDirectory()
	// Just west of Opera.
	s, dist, err := d.Nearest(context.Background(), models.Coord{Lat: 30.0421, Lon: 31.2240})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if s.ID != 2 {
		t.Fatalf("nearest = %d, want 2 (Opera)", s.ID)
	}
	if dist <= 0 || dist > 1 {
		t.Fatalf("distance = %f km, want under a kilometer", dist)
	}
}

func TestNearestSkipsUnmappedStations(t *testing.T) {
	d := testDirectory()
	// Null island would match the zero-coordinate station if it were
	// not skipped.
	s, _, err := d.Nearest(context.Background(), models.Coord{Lat: 0.001, Lon: 0.001})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if s.ID == 4 {
		t.Fatal("unmapped station must not be returned")
	}
}

func TestNearestEmptyDirectory(t *testing.T) {
	d := NewMemoryDirectory()
	if _, _, err := d.Nearest(context.Background(), models.Coord{Lat: 30, Lon: 31}); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("expected ErrStationNotFound, got %v", err)
	}
}

func TestGateLookup(t *testing.T) {
	d := NewMemoryDirectory()
	d.AddGate(models.Gate{ID: "g-1", StationID: 1, Type: models.GateEntry, Operational: true})
	d.AddGate(models.Gate{ID: "g-2", StationID: 1, Type: models.GateExit, Operational: false})

	ctx := context.Background()
	g, err := d.Gate(ctx, "g-1")
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if g.StationID != 1 || g.Type != models.GateEntry {
		t.Fatalf("gate = %+v", g)
	}

	if _, err := d.Gate(ctx, "g-2"); !errors.Is(err, ErrGateNotFound) {
		t.Fatalf("out-of-service gate must not resolve, got %v", err)
	}
	if _, err := d.Gate(ctx, "missing"); !errors.Is(err, ErrGateNotFound) {
		t.Fatalf("unknown gate: %v", err)
	}
}

func TestPlanJourney(t *testing.T) {
	d := testDirectory()
	p := &Planner{
		Locator: d,
		Graph:   routes.NewGraph([]routes.Line{{Number: 1, Stations: []int{1, 2, 3}}}),
	}

	plan, err := p.Plan(context.Background(),
		models.Coord{Lat: 30.0444, Lon: 31.2357}, // at Sadat
		models.Coord{Lat: 30.0381, Lon: 31.2122}, // at Dokki
	)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Departure.ID != 1 || plan.Destination.ID != 3 {
		t.Fatalf("plan endpoints = %d -> %d, want 1 -> 3", plan.Departure.ID, plan.Destination.ID)
	}
	if plan.Route == nil {
		t.Fatalf("expected route info, got error %q", plan.RouteError)
	}
	if plan.Route.StationCount != 2 {
		t.Fatalf("station count = %d, want 2", plan.Route.StationCount)
	}
}

func TestPlanSurvivesRouteFailure(t *testing.T) {
	d := testDirectory()
	// A graph that knows nothing about the directory's stations.
	p := &Planner{
		Locator: d,
		Graph:   routes.NewGraph([]routes.Line{{Number: 9, Stations: []int{90, 91}}}),
	}

	plan, err := p.Plan(context.Background(),
		models.Coord{Lat: 30.0444, Lon: 31.2357},
		models.Coord{Lat: 30.0381, Lon: 31.2122},
	)
	if err != nil {
		t.Fatalf("plan must not fail on a route error: %v", err)
	}
	if plan.Route != nil || plan.RouteError == "" {
		t.Fatalf("expected route error in plan, got %+v", plan)
	}
}

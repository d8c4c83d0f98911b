package routes

import (
	"errors"
	"testing"

	"github.com/khaledhegab/ets-backend-final/internal/fares"
)

func TestRouteSameLine(t *testing.T) {
	g := NewGraph(NetworkLines())
	// 19 and 34 sit on line 2 three stops apart.
	path, err := g.Route(19, 34)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(path) != 4 {
		t.Fatalf("expected 4 steps, got %d: %v", len(path), path)
	}
	if TransferCount(path) != 0 {
		t.Fatalf("expected no transfers, got %d", TransferCount(path))
	}
	for _, step := range path[1:] {
		if step.ArrivalLine != 2 {
			t.Fatalf("expected line 2 throughout, got %v", path)
		}
	}
}

func TestRouteMinimizesTransfersOverHops(t *testing.T) {
	// Two ways from 1 to 4: hopping lines 2-3-4 (2 transfers, 3 stops)
	// or the long way around on line 1 (0 transfers, 4 stops). Plain
	// BFS would pick the short path; transfer-minimizing search must
	// stay on line 1.
	lines := []Line{
		{Number: 1, Stations: []int{1, 10, 11, 12, 4}},
		{Number: 2, Stations: []int{1, 2}},
		{Number: 3, Stations: []int{2, 3}},
		{Number: 4, Stations: []int{3, 4}},
	}
	g := NewGraph(lines)
	path, err := g.Route(1, 4)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if TransferCount(path) != 0 {
		t.Fatalf("expected zero-transfer route, got %d transfers: %v", TransferCount(path), path)
	}
	if len(path)-1 != 4 {
		t.Fatalf("expected 4 hops on line 1, got %d", len(path)-1)
	}
}

func TestRouteSymmetry(t *testing.T) {
	g := NewGraph(NetworkLines())
	pairs := [][2]int{{42, 56}, {19, 3}, {4, 79}, {12, 83}}
	for _, p := range pairs {
		forward, err := g.Route(p[0], p[1])
		if err != nil {
			t.Fatalf("route %v: %v", p, err)
		}
		backward, err := g.Route(p[1], p[0])
		if err != nil {
			t.Fatalf("route reverse %v: %v", p, err)
		}
		if TransferCount(forward) != TransferCount(backward) {
			t.Errorf("asymmetric transfer count for %v: %d vs %d",
				p, TransferCount(forward), TransferCount(backward))
		}
		if len(forward) != len(backward) {
			t.Errorf("asymmetric station count for %v: %d vs %d",
				p, len(forward)-1, len(backward)-1)
		}
	}
}

func TestRouteUnknownStation(t *testing.T) {
	g := NewGraph(NetworkLines())
	if _, err := g.Route(42, 9999); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestRouteDisconnected(t *testing.T) {
	g := NewGraph([]Line{
		{Number: 1, Stations: []int{1, 2, 3}},
		{Number: 2, Stations: []int{10, 11}},
	})
	if _, err := g.Route(1, 11); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestStationCountSameStation(t *testing.T) {
	g := NewGraph(NetworkLines())
	n, err := g.StationCount(42, 42)
	if err != nil {
		t.Fatalf("station count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestTripInfoSameStation(t *testing.T) {
	g := NewGraph(NetworkLines())
	info, err := g.TripInfo(42, 42)
	if err != nil {
		t.Fatalf("trip info: %v", err)
	}
	if info.StationCount != 0 || info.TierName != fares.TierSameStation {
		t.Fatalf("expected zero-length same-station trip, got %+v", info)
	}
	if info.HasTransfer {
		t.Fatal("same-station trip cannot have a transfer")
	}
}

func TestTripInfoTransferStations(t *testing.T) {
	lines := []Line{
		{Number: 1, Stations: []int{1, 2, 3}},
		{Number: 2, Stations: []int{3, 4, 5}},
	}
	g := NewGraph(lines)
	info, err := g.TripInfo(1, 5)
	if err != nil {
		t.Fatalf("trip info: %v", err)
	}
	if info.StationCount != 4 {
		t.Fatalf("expected 4 stations, got %d", info.StationCount)
	}
	if !info.HasTransfer {
		t.Fatal("expected a transfer")
	}
	if len(info.LinesUsed) != 2 || info.LinesUsed[0] != 1 || info.LinesUsed[1] != 2 {
		t.Fatalf("expected lines [1 2], got %v", info.LinesUsed)
	}
	// The change happens at station 3, the last stop reached on line 1.
	if len(info.TransferStations) != 1 || info.TransferStations[0] != 3 {
		t.Fatalf("expected transfer at station 3, got %v", info.TransferStations)
	}
}

func TestTripInfoBranchRoute(t *testing.T) {
	g := NewGraph(NetworkLines())
	// 74 is on the north branch; 80 is on the west branch. Both hang
	// off 72, so the route must pass through it with one transfer.
	info, err := g.TripInfo(74, 80)
	if err != nil {
		t.Fatalf("trip info: %v", err)
	}
	if info.StationCount != 2 {
		t.Fatalf("expected 2 stations via 72, got %d: %v", info.StationCount, info.Route)
	}
	if len(info.TransferStations) != 1 || info.TransferStations[0] != 72 {
		t.Fatalf("expected transfer at 72, got %v", info.TransferStations)
	}
}

func TestStationLines(t *testing.T) {
	g := NewGraph(NetworkLines())
	// 72 is the line 3 terminus and the root of both branches.
	got := g.StationLines(72)
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

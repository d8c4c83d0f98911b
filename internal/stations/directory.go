// Package stations resolves gates and stations, and answers
// nearest-station queries for the journey planner.
package stations

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/khaledhegab/ets-backend-final/internal/models"
)

var (
	ErrGateNotFound    = errors.New("gate not found or inactive")
	ErrStationNotFound = errors.New("station not found")
)

// Directory resolves gate and station ids. Reference data is external
// and read-only to this service.
type Directory interface {
	Gate(ctx context.Context, gateID string) (models.Gate, error)
	Station(ctx context.Context, stationID int) (models.Station, error)
}

// Locator answers nearest-station queries for rider coordinates.
type Locator interface {
	Nearest(ctx context.Context, loc models.Coord) (models.Station, float64, error)
}

// MemoryDirectory serves both interfaces from in-process maps, used in
// tests and dsn-less runs. Nearest is a full haversine scan; the network
// is under a hundred stations.
type MemoryDirectory struct {
	mu       sync.RWMutex
	gates    map[string]models.Gate
	stations map[int]models.Station
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		gates:    make(map[string]models.Gate),
		stations: make(map[int]models.Station),
	}
}

func (m *MemoryDirectory) AddGate(g models.Gate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[g.ID] = g
}

func (m *MemoryDirectory) AddStation(s models.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations[s.ID] = s
}

func (m *MemoryDirectory) Gate(_ context.Context, gateID string) (models.Gate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gates[gateID]
	if !ok || !g.Operational {
		return models.Gate{}, ErrGateNotFound
	}
	return g, nil
}

func (m *MemoryDirectory) Station(_ context.Context, stationID int) (models.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stations[stationID]
	if !ok {
		return models.Station{}, ErrStationNotFound
	}
	return s, nil
}

func (m *MemoryDirectory) Nearest(_ context.Context, loc models.Coord) (models.Station, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best     models.Station
		bestDist = math.MaxFloat64
		found    bool
	)
	for _, s := range m.stations {
		if s.Loc.Lat == 0 && s.Loc.Lon == 0 {
			continue
		}
		d := HaversineKm(loc.Lat, loc.Lon, s.Loc.Lat, s.Loc.Lon)
		if d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	if !found {
		return models.Station{}, 0, ErrStationNotFound
	}
	return best, bestDist, nil
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

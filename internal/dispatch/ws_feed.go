// Package dispatch pushes gate activity to station dashboards over
// websockets and delivers reconciliation alerts to the operations
// endpoint.
package dispatch

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/khaledhegab/ets-backend-final/internal/models"
)

// wsSession is one connected dashboard.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(ev models.TripEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// StationFeed fans trip events out to the dashboards watching each
// station. Slow or dead connections are dropped on write failure.
type StationFeed struct {
	mu       sync.RWMutex
	sessions map[int][]*wsSession
}

func NewStationFeed() *StationFeed {
	return &StationFeed{sessions: make(map[int][]*wsSession)}
}

func (f *StationFeed) Subscribe(stationID int, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[stationID] = append(f.sessions[stationID], &wsSession{conn: conn})
}

// Unsubscribe removes and closes a dashboard connection.
func (f *StationFeed) Unsubscribe(stationID int, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.sessions[stationID]
	kept := make([]*wsSession, 0, len(cur))
	for _, s := range cur {
		if s.conn == conn {
			_ = s.conn.Close()
			continue
		}
		kept = append(kept, s)
	}
	f.sessions[stationID] = kept
}

// Subscribers reports how many dashboards are watching a station.
func (f *StationFeed) Subscribers(stationID int) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions[stationID])
}

// Broadcast sends the event to every dashboard watching its station.
func (f *StationFeed) Broadcast(ev models.TripEvent) {
	f.mu.RLock()
	subs := f.sessions[ev.StationID]
	f.mu.RUnlock()

	var dead []*wsSession
	for _, s := range subs {
		if err := s.send(ev); err != nil {
			dead = append(dead, s)
		}
	}
	if len(dead) > 0 {
		f.evict(ev.StationID, dead)
	}
}

func (f *StationFeed) evict(stationID int, dead []*wsSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Build a fresh slice: Broadcast iterates a snapshot of the old
	// backing array outside the lock, so it must never be compacted in
	// place.
	cur := f.sessions[stationID]
	kept := make([]*wsSession, 0, len(cur))
	for _, s := range cur {
		drop := false
		for _, d := range dead {
			if s == d {
				drop = true
				break
			}
		}
		if drop {
			_ = s.conn.Close()
			continue
		}
		kept = append(kept, s)
	}
	f.sessions[stationID] = kept
}

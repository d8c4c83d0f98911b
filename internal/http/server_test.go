package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khaledhegab/ets-backend-final/internal/dispatch"
	"github.com/khaledhegab/ets-backend-final/internal/models"
)

func waitForSubscribers(t *testing.T, feed *dispatch.StationFeed, stationID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if feed.Subscribers(stationID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("station %d subscribers never reached %d", stationID, want)
}

func TestStationFeedEndpoint(t *testing.T) {
	feed := dispatch.NewStationFeed()
	srv := httptest.NewServer(NewServer(Deps{Feed: feed}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stations/5"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForSubscribers(t, feed, 5, 1)

	feed.Broadcast(models.TripEvent{Type: "trip.started", TripID: "t-1", StationID: 5})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.TripEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.TripID != "t-1" {
		t.Fatalf("got %+v, want trip t-1", ev)
	}

	// A departing dashboard is noticed by the read pump and dropped
	// without waiting for the next broadcast.
	conn.Close()
	waitForSubscribers(t, feed, 5, 0)
}

func TestStationFeedBadStationID(t *testing.T) {
	srv := httptest.NewServer(NewServer(Deps{Feed: dispatch.NewStationFeed()}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/stations/not-a-number")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/khaledhegab/ets-backend-final/internal/ledger"
	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/recharge"
	"github.com/khaledhegab/ets-backend-final/internal/routes"
)

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RiderID   string `json:"rider_id"`
		PartySize int    `json:"number_of_clients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Ledger.StartTrip(r.Context(), req.RiderID, req.PartySize)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_key": res.AccessKey,
		"expires_at": res.ExpiresAt,
		"total_cost": res.TotalCost,
	})
}

func (s *Server) handleGateEnter(w http.ResponseWriter, r *http.Request) {
	gate, ok := gateFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "station authentication required")
		return
	}
	if gate.Type != models.GateEntry {
		writeJSONError(w, http.StatusBadRequest, "this gate is not an entry gate")
		return
	}

	var req struct {
		AccessKey string `json:"access_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Ledger.BeginAtGate(r.Context(), req.AccessKey, gate.StationID, gate.ID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if s.Feed != nil {
		s.Feed.Broadcast(models.TripEvent{
			Type: "trip.started", TripID: res.TripID, RiderID: res.RiderID,
			StationID: gate.StationID, GateID: gate.ID,
			PartySize: res.PartySize, Amount: res.AmountHeld, At: res.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGateExit(w http.ResponseWriter, r *http.Request) {
	gate, ok := gateFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "station authentication required")
		return
	}
	if gate.Type != models.GateExit {
		writeJSONError(w, http.StatusBadRequest, "this gate is not an exit gate")
		return
	}

	var req struct {
		TripID string `json:"trip_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Ledger.EndAtGate(r.Context(), req.TripID, gate.StationID, gate.ID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if s.Feed != nil {
		s.Feed.Broadcast(models.TripEvent{
			Type: "trip.ended", TripID: res.TripID, RiderID: res.RiderID,
			StationID: gate.StationID, GateID: gate.ID,
			Amount: res.Fare, TierName: res.TierName,
			StationCount: res.StationCount, At: res.EndedAt,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePlanJourney(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start       models.Coord `json:"start"`
		Destination models.Coord `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, err := s.Planner.Plan(r.Context(), req.Start, req.Destination)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleCreateTopUp(w http.ResponseWriter, r *http.Request) {
	if s.Stripe == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "top-ups are not configured")
		return
	}
	var req struct {
		RiderID string `json:"rider_id"`
		Amount  int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RiderID == "" || req.Amount <= 0 {
		writeJSONError(w, http.StatusBadRequest, "rider_id and a positive amount are required")
		return
	}
	id, secret, err := s.Stripe.CreateTopUpIntent(r.Context(), req.RiderID, req.Amount)
	if err != nil {
		s.logger.Error("create top-up intent", "rider_id", req.RiderID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_intent_id": id, "client_secret": secret})
}

// handlePaymentWebhook always answers 200 for a decodable body: the
// processor drops bad events internally and the provider must not
// retry them. Only a storage failure earns a 500 so the provider tries
// again later.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var ev recharge.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sig := r.Header.Get("X-Webhook-Signature")
	if err := s.Recharge.Process(r.Context(), ev, sig); err != nil {
		s.logger.Error("recharge processing failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "recharge processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleStationFeed(w http.ResponseWriter, r *http.Request) {
	if s.Feed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "station feed is not configured")
		return
	}
	vars := mux.Vars(r)
	stationID, err := strconv.Atoi(vars["station_id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad station id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.Feed.Subscribe(stationID, conn)

	// Drain the connection so close and ping frames are handled; the
	// first read error means the dashboard went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.Feed.Unsubscribe(stationID, conn)
				return
			}
		}
	}()
}

// writeLedgerError maps the ledger taxonomy onto HTTP statuses.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	var recErr *ledger.ReconciliationError
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "invalid or expired access key")
	case errors.Is(err, ledger.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTripActive):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrTripEnded), errors.Is(err, ledger.ErrNotOnHold):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, routes.ErrNoRoute):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &recErr):
		writeJSONError(w, http.StatusInternalServerError, "settlement requires reconciliation; operators notified")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

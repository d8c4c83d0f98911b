// Package httpapi is the thin request layer over the fare ledger. It
// owns no business rules: decode, delegate, map errors to status codes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khaledhegab/ets-backend-final/internal/dispatch"
	"github.com/khaledhegab/ets-backend-final/internal/ledger"
	"github.com/khaledhegab/ets-backend-final/internal/payments"
	"github.com/khaledhegab/ets-backend-final/internal/recharge"
	"github.com/khaledhegab/ets-backend-final/internal/stations"
)

type Server struct {
	Ledger   *ledger.Ledger
	Recharge *recharge.Processor
	Planner  *stations.Planner
	Gates    stations.Directory
	Stripe   *payments.StripeClient // optional
	Feed     *dispatch.StationFeed

	StationToken string

	logger *slog.Logger
	mux    *mux.Router
}

type Deps struct {
	Ledger       *ledger.Ledger
	Recharge     *recharge.Processor
	Planner      *stations.Planner
	Gates        stations.Directory
	Stripe       *payments.StripeClient
	Feed         *dispatch.StationFeed
	StationToken string
	Logger       *slog.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		Ledger:       deps.Ledger,
		Recharge:     deps.Recharge,
		Planner:      deps.Planner,
		Gates:        deps.Gates,
		Stripe:       deps.Stripe,
		Feed:         deps.Feed,
		StationToken: deps.StationToken,
		logger:       deps.Logger,
		mux:          mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/trips/start", s.handleStartTrip).Methods("POST")
	api.HandleFunc("/journeys/plan", s.handlePlanJourney).Methods("POST")
	api.HandleFunc("/recharges", s.handleCreateTopUp).Methods("POST")
	api.HandleFunc("/webhooks/payment", s.handlePaymentWebhook).Methods("POST")

	gates := api.PathPrefix("/gates").Subrouter()
	gates.Use(s.stationAuthMiddleware)
	gates.HandleFunc("/enter", s.handleGateEnter).Methods("POST")
	gates.HandleFunc("/exit", s.handleGateExit).Methods("POST")

	s.mux.HandleFunc("/ws/stations/{station_id}", s.handleStationFeed)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

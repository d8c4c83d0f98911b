// Package ledger implements the hold-at-entry / settle-at-exit fare
// state machine. Gate entry places a conservative hold sized at the most
// expensive tier; gate exit computes the actual fare from the route and
// releases the excess. Every mutation is sequenced so that reversible
// steps come first and are compensated on failure, and anything that
// fails after an irrecoverable commit is flagged for operator
// reconciliation rather than retried.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khaledhegab/ets-backend-final/internal/fares"
	"github.com/khaledhegab/ets-backend-final/internal/models"
	"github.com/khaledhegab/ets-backend-final/internal/observability"
	"github.com/khaledhegab/ets-backend-final/internal/routes"
	"github.com/khaledhegab/ets-backend-final/internal/storage"
	"github.com/khaledhegab/ets-backend-final/internal/token"
)

// EventPublisher receives trip lifecycle events. Publishing is
// best-effort; a broker outage must not fail a settlement.
type EventPublisher interface {
	PublishTripEvent(ctx context.Context, ev models.TripEvent) error
}

// ReconciliationAlert describes a half-applied settlement that needs a
// human.
type ReconciliationAlert struct {
	Op            string `json:"op"`
	TripID        string `json:"trip_id"`
	RiderID       string `json:"rider_id"`
	TransactionID string `json:"transaction_id"`
	Detail        string `json:"detail"`
}

// AlertNotifier delivers reconciliation alerts to operators.
type AlertNotifier interface {
	Alert(ctx context.Context, alert ReconciliationAlert)
}

type Ledger struct {
	Accounts     storage.AccountStore
	Transactions storage.TransactionStore
	Trips        storage.TripStore
	Prices       fares.PriceProvider
	Graph        *routes.Graph
	Tokens       *token.Codec

	Events EventPublisher // optional
	Alerts AlertNotifier  // optional
	Logger *slog.Logger   // optional

	TokenTTL time.Duration
}

// balance CAS retries before giving up; each attempt re-reads the row.
const casAttempts = 3

type StartResult struct {
	AccessKey string    `json:"access_key"`
	ExpiresAt time.Time `json:"expires_at"`
	TotalCost int64     `json:"total_cost"`
}

type BeginResult struct {
	TripID           string    `json:"trip_id"`
	RiderID          string    `json:"rider_id"`
	TransactionID    string    `json:"transaction_id"`
	AmountHeld       int64     `json:"amount_held"`
	RemainingBalance int64     `json:"remaining_available_balance"`
	StartStationID   int       `json:"start_station_id"`
	StartGateID      string    `json:"start_gate_id"`
	StartedAt        time.Time `json:"started_at"`
	PartySize        int       `json:"party_size"`
}

type EndResult struct {
	TripID         string    `json:"trip_id"`
	RiderID        string    `json:"rider_id"`
	StartStationID int       `json:"start_station_id"`
	EndStationID   int       `json:"end_station_id"`
	StartGateID    string    `json:"start_gate_id"`
	EndGateID      string    `json:"end_gate_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	TierName       string    `json:"ticket_type"`
	StationCount   int       `json:"station_count"`
	Fare           int64     `json:"fare"`
	Refund         int64     `json:"refund"`
}

// StartTrip runs the rider-side preflight and issues an access key. No
// funds move here; the hold happens when the key is presented at a gate.
func (l *Ledger) StartTrip(ctx context.Context, riderID string, partySize int) (StartResult, error) {
	if partySize < 1 {
		return StartResult{}, fmt.Errorf("party size must be at least 1: %w", ErrUnauthorized)
	}

	bal, err := l.Accounts.GetBalance(ctx, riderID)
	if err != nil {
		return StartResult{}, mapStoreErr("load balance", err)
	}

	totalCost, err := l.holdCost(ctx, partySize)
	if err != nil {
		return StartResult{}, err
	}
	if bal.Available < totalCost {
		return StartResult{}, fmt.Errorf("required %d, available %d: %w", totalCost, bal.Available, ErrInsufficientFunds)
	}

	if _, err := l.Trips.FindOpenForRider(ctx, riderID); err == nil {
		return StartResult{}, ErrTripActive
	} else if !errors.Is(err, storage.ErrNotFound) {
		return StartResult{}, &PersistenceError{Op: "check active trip", Err: err}
	}

	key, payload, err := l.Tokens.Issue(riderID, partySize, l.TokenTTL)
	if err != nil {
		return StartResult{}, &PersistenceError{Op: "issue access key", Err: err}
	}

	return StartResult{
		AccessKey: key,
		ExpiresAt: time.UnixMilli(payload.ExpiresAt),
		TotalCost: totalCost,
	}, nil
}

// BeginAtGate validates the access key, holds funds at the Extended
// tier, and opens the trip. The trip insert is the serialization point
// for the one-open-trip-per-rider invariant: losing that race after the
// hold is applied triggers full compensation.
func (l *Ledger) BeginAtGate(ctx context.Context, accessKey string, stationID int, gateID string) (BeginResult, error) {
	payload, err := l.Tokens.Validate(accessKey)
	if err != nil {
		return BeginResult{}, ErrUnauthorized
	}
	riderID := payload.RiderID

	bal, err := l.Accounts.GetBalance(ctx, riderID)
	if err != nil {
		return BeginResult{}, mapStoreErr("load balance", err)
	}

	totalCost, err := l.holdCost(ctx, payload.PartySize)
	if err != nil {
		return BeginResult{}, err
	}
	// Sufficiency is decided before anything is written; a rejected
	// rider must leave no transaction row behind. holdFunds re-checks
	// against a fresh read when it applies the hold.
	if bal.Available < totalCost {
		return BeginResult{}, fmt.Errorf("required %d, available %d: %w", totalCost, bal.Available, ErrInsufficientFunds)
	}

	if _, err := l.Trips.FindOpenForRider(ctx, riderID); err == nil {
		return BeginResult{}, ErrTripActive
	} else if !errors.Is(err, storage.ErrNotFound) {
		return BeginResult{}, &PersistenceError{Op: "check active trip", Err: err}
	}

	txn := &models.Transaction{RiderID: riderID, Amount: totalCost, Debit: true, Hold: true}
	txnID, err := l.Transactions.Insert(ctx, txn)
	if err != nil {
		return BeginResult{}, &PersistenceError{Op: "insert hold transaction", Err: err}
	}

	held, err := l.holdFunds(ctx, riderID, totalCost)
	if err != nil {
		if delErr := l.Transactions.Delete(ctx, txnID); delErr != nil {
			l.logger().ErrorContext(ctx, "rollback failed: orphan hold transaction",
				"rider_id", riderID, "transaction_id", txnID, "error", delErr)
		}
		return BeginResult{}, err
	}

	now := time.Now()
	trip := &models.Trip{
		RiderID:        riderID,
		StartStationID: stationID,
		StartGateID:    gateID,
		StartedAt:      now,
		TransactionID:  txnID,
		PartySize:      payload.PartySize,
	}
	tripID, err := l.Trips.InsertOpen(ctx, trip)
	if err != nil {
		l.releaseHold(ctx, riderID, totalCost, txnID)
		if errors.Is(err, storage.ErrConflict) {
			return BeginResult{}, ErrTripActive
		}
		return BeginResult{}, &PersistenceError{Op: "insert trip", Err: err}
	}

	observability.TripsStarted.Inc()
	observability.AmountHeld.Observe(float64(totalCost))
	l.publish(ctx, models.TripEvent{
		Type: "trip.started", TripID: tripID, RiderID: riderID, StationID: stationID,
		GateID: gateID, PartySize: payload.PartySize, Amount: totalCost, At: now,
	})
	l.logger().InfoContext(ctx, "trip started",
		"trip_id", tripID, "rider_id", riderID, "station_id", stationID, "held", totalCost)

	return BeginResult{
		TripID:           tripID,
		RiderID:          riderID,
		TransactionID:    txnID,
		AmountHeld:       totalCost,
		RemainingBalance: held.Available,
		StartStationID:   stationID,
		StartGateID:      gateID,
		StartedAt:        now,
		PartySize:        payload.PartySize,
	}, nil
}

// EndAtGate computes the fare for the distance actually travelled,
// settles the hold and closes the trip. Once the trip row is marked
// ended the operation is past the point of no return: later failures
// raise reconciliation alerts instead of being rolled back.
func (l *Ledger) EndAtGate(ctx context.Context, tripID string, stationID int, gateID string) (EndResult, error) {
	trip, err := l.Trips.FindByID(ctx, tripID)
	if err != nil {
		return EndResult{}, mapStoreErr("load trip", err)
	}
	if trip.Ended {
		return EndResult{}, ErrTripEnded
	}

	stationCount, err := l.Graph.StationCount(trip.StartStationID, stationID)
	if err != nil {
		// A missing edge in the network definition directly affects
		// money; never default it to a tier.
		observability.RouteFailures.Inc()
		l.logger().ErrorContext(ctx, "no route between gated stations",
			"trip_id", tripID, "start_station", trip.StartStationID, "end_station", stationID)
		return EndResult{}, err
	}

	tierName := fares.TierForStationCount(stationCount)
	price, err := l.Prices.PriceOf(ctx, tierName)
	if err != nil {
		if errors.Is(err, fares.ErrTierNotFound) {
			return EndResult{}, fmt.Errorf("tier %q: %w", tierName, ErrNotFound)
		}
		return EndResult{}, &PersistenceError{Op: "load tier price", Err: err}
	}

	txn, err := l.Transactions.FindByID(ctx, trip.TransactionID)
	if err != nil {
		return EndResult{}, mapStoreErr("load hold transaction", err)
	}
	if !txn.Hold {
		return EndResult{}, ErrNotOnHold
	}

	if _, err := l.Accounts.GetBalance(ctx, trip.RiderID); err != nil {
		return EndResult{}, mapStoreErr("load balance", err)
	}

	heldAmount := txn.Amount
	actualFare := int64(trip.PartySize) * price
	refund := heldAmount - actualFare
	if refund < 0 {
		// The hold is sized at the Extended tier, so a negative refund
		// means the price table no longer orders tiers correctly. The
		// arithmetic is still applied; the books must match the charge.
		observability.FareExceedsHold.Inc()
		l.logger().ErrorContext(ctx, "fare exceeds held amount; check tier price configuration",
			"trip_id", tripID, "held", heldAmount, "fare", actualFare)
	}

	if err := l.Trips.MarkEnded(ctx, tripID, storage.TripEnd{
		EndStationID: stationID,
		EndGateID:    gateID,
		TierName:     tierName,
		StationCount: stationCount,
	}); err != nil {
		return EndResult{}, &PersistenceError{Op: "mark trip ended", Err: err}
	}

	if err := l.Transactions.Settle(ctx, trip.TransactionID, actualFare); err != nil {
		return EndResult{}, l.reconcile(ctx, "settle transaction", trip, err)
	}

	if err := l.settleFunds(ctx, trip.RiderID, heldAmount, refund); err != nil {
		return EndResult{}, l.reconcile(ctx, "release held balance", trip, err)
	}

	endedAt := time.Now()
	observability.TripsEnded.Inc()
	observability.FareCharged.Observe(float64(actualFare))
	l.publish(ctx, models.TripEvent{
		Type: "trip.ended", TripID: tripID, RiderID: trip.RiderID, StationID: stationID,
		GateID: gateID, PartySize: trip.PartySize, Amount: actualFare,
		TierName: tierName, StationCount: stationCount, At: endedAt,
	})
	l.logger().InfoContext(ctx, "trip ended",
		"trip_id", tripID, "rider_id", trip.RiderID, "tier", tierName,
		"stations", stationCount, "fare", actualFare, "refund", refund)

	return EndResult{
		TripID:         tripID,
		RiderID:        trip.RiderID,
		StartStationID: trip.StartStationID,
		EndStationID:   stationID,
		StartGateID:    trip.StartGateID,
		EndGateID:      gateID,
		StartedAt:      trip.StartedAt,
		EndedAt:        endedAt,
		TierName:       tierName,
		StationCount:   stationCount,
		Fare:           actualFare,
		Refund:         refund,
	}, nil
}

// holdCost prices the hold at the most expensive tier, so the later
// settlement can never exceed the reserved funds under a sane table.
func (l *Ledger) holdCost(ctx context.Context, partySize int) (int64, error) {
	price, err := l.Prices.PriceOf(ctx, fares.TierExtended)
	if err != nil {
		if errors.Is(err, fares.ErrTierNotFound) {
			return 0, fmt.Errorf("tier %q: %w", fares.TierExtended, ErrNotFound)
		}
		return 0, &PersistenceError{Op: "load extended price", Err: err}
	}
	return int64(partySize) * price, nil
}

// holdFunds moves amount from available to holding with a bounded CAS
// loop; the sufficiency check is re-applied against every fresh read.
func (l *Ledger) holdFunds(ctx context.Context, riderID string, amount int64) (models.Balance, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		bal, err := l.Accounts.GetBalance(ctx, riderID)
		if err != nil {
			return models.Balance{}, mapStoreErr("load balance", err)
		}
		if bal.Available < amount {
			return models.Balance{}, fmt.Errorf("required %d, available %d: %w", amount, bal.Available, ErrInsufficientFunds)
		}
		next := models.Balance{Available: bal.Available - amount, Holding: bal.Holding + amount}
		err = l.Accounts.UpdateBalance(ctx, riderID, bal, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, storage.ErrStale) {
			return models.Balance{}, &PersistenceError{Op: "hold balance", Err: err}
		}
	}
	return models.Balance{}, &PersistenceError{Op: "hold balance", Err: storage.ErrStale}
}

// settleFunds drops the hold and returns the refund to available.
func (l *Ledger) settleFunds(ctx context.Context, riderID string, heldAmount, refund int64) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		bal, err := l.Accounts.GetBalance(ctx, riderID)
		if err != nil {
			return err
		}
		next := models.Balance{Available: bal.Available + refund, Holding: bal.Holding - heldAmount}
		err = l.Accounts.UpdateBalance(ctx, riderID, bal, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStale) {
			return err
		}
	}
	return storage.ErrStale
}

// releaseHold compensates a failed gate entry: balance back, then the
// hold transaction row. Failures here are logged loudly; there is
// nothing further to unwind.
func (l *Ledger) releaseHold(ctx context.Context, riderID string, amount int64, txnID string) {
	if err := l.settleFunds(ctx, riderID, amount, amount); err != nil {
		l.logger().ErrorContext(ctx, "rollback failed: funds stuck on hold",
			"rider_id", riderID, "transaction_id", txnID, "amount", amount, "error", err)
	}
	if err := l.Transactions.Delete(ctx, txnID); err != nil {
		l.logger().ErrorContext(ctx, "rollback failed: orphan hold transaction",
			"rider_id", riderID, "transaction_id", txnID, "error", err)
	}
}

func (l *Ledger) reconcile(ctx context.Context, op string, trip models.Trip, err error) error {
	rec := &ReconciliationError{
		Op:            op,
		TripID:        trip.ID,
		RiderID:       trip.RiderID,
		TransactionID: trip.TransactionID,
		Err:           err,
	}
	observability.ReconciliationsRequired.Inc()
	l.logger().ErrorContext(ctx, "settlement left inconsistent state",
		"op", op, "trip_id", trip.ID, "rider_id", trip.RiderID,
		"transaction_id", trip.TransactionID, "error", err)
	if l.Alerts != nil {
		l.Alerts.Alert(ctx, ReconciliationAlert{
			Op:            op,
			TripID:        trip.ID,
			RiderID:       trip.RiderID,
			TransactionID: trip.TransactionID,
			Detail:        err.Error(),
		})
	}
	return rec
}

func (l *Ledger) publish(ctx context.Context, ev models.TripEvent) {
	if l.Events == nil {
		return
	}
	if err := l.Events.PublishTripEvent(ctx, ev); err != nil {
		l.logger().WarnContext(ctx, "trip event publish failed", "type", ev.Type, "trip_id", ev.TripID, "error", err)
	}
}

func (l *Ledger) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func mapStoreErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &PersistenceError{Op: op, Err: err}
}

package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/khaledhegab/ets-backend-final/internal/models"
)

var (
	// ErrNotFound is returned when a rider, trip or transaction row is absent.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert loses to a uniqueness
	// constraint: a second open trip for a rider, or a duplicate
	// recharge reference id.
	ErrConflict = errors.New("conflicting record exists")
	// ErrStale is returned when a conditional balance write finds the
	// row changed since it was read.
	ErrStale = errors.New("balance changed since read")
)

// AccountStore reads and conditionally writes rider balances.
type AccountStore interface {
	GetBalance(ctx context.Context, riderID string) (models.Balance, error)
	// UpdateBalance applies next only if the stored balance still equals
	// prev, returning ErrStale otherwise. Concurrent recharges and gate
	// settlements race on the same row; a blind write would lose updates.
	UpdateBalance(ctx context.Context, riderID string, prev, next models.Balance) error
}

// TransactionStore persists ledger rows.
type TransactionStore interface {
	// Insert assigns and returns the id. A duplicate non-empty
	// ReferenceID yields ErrConflict.
	Insert(ctx context.Context, txn *models.Transaction) (string, error)
	// Settle clears the hold flag and rewrites the amount to the fare
	// actually charged.
	Settle(ctx context.Context, id string, amount int64) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (models.Transaction, error)
	FindByReferenceID(ctx context.Context, ref string) (models.Transaction, error)
}

// TripEnd carries the fields written when a trip closes.
type TripEnd struct {
	EndStationID int
	EndGateID    string
	TierName     string
	StationCount int
}

// TripStore persists trips. The open-trip uniqueness invariant lives
// here: InsertOpen is the serialization point for racing gate entries.
type TripStore interface {
	// InsertOpen assigns and returns the id, failing with ErrConflict
	// if the rider already has a trip that is not ended. The check and
	// the insert must be atomic with respect to concurrent calls.
	InsertOpen(ctx context.Context, trip *models.Trip) (string, error)
	MarkEnded(ctx context.Context, id string, end TripEnd) error
	FindByID(ctx context.Context, id string) (models.Trip, error)
	FindOpenForRider(ctx context.Context, riderID string) (models.Trip, error)
}

// NewID returns a random 16-hex-char identifier.
func NewID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

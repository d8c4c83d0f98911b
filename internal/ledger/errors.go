package ledger

import (
	"errors"
	"fmt"
)

// Expected, caller-recoverable failures. Nothing is mutated when these
// are returned.
var (
	ErrUnauthorized      = errors.New("invalid or expired access key")
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrTripActive        = errors.New("rider already has an active trip")
	ErrTripEnded         = errors.New("trip is already ended")
	ErrNotOnHold         = errors.New("transaction is not in hold status")
)

// PersistenceError wraps a storage failure that occurred while the
// operation was still reversible; any partial mutation has been
// compensated before it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReconciliationError reports a failure after an irrecoverable step
// (trip ended, transaction settled) already committed. Retrying the
// remaining writes blindly risks double refunds, so the condition is
// surfaced to operators instead.
type ReconciliationError struct {
	Op            string
	TripID        string
	RiderID       string
	TransactionID string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required: %s failed for trip %s (rider %s, txn %s): %v",
		e.Op, e.TripID, e.RiderID, e.TransactionID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

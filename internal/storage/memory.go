package storage

import (
	"context"
	"sync"
	"time"

	"github.com/khaledhegab/ets-backend-final/internal/models"
)

// Memory implementations back tests and dsn-less local runs. They
// enforce the same conditional-write semantics as Postgres.

type MemoryAccounts struct {
	mu       sync.Mutex
	balances map[string]models.Balance
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{balances: make(map[string]models.Balance)}
}

// Seed installs a rider balance, for tests and local bootstrap.
func (m *MemoryAccounts) Seed(riderID string, b models.Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[riderID] = b
}

func (m *MemoryAccounts) GetBalance(_ context.Context, riderID string) (models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[riderID]
	if !ok {
		return models.Balance{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryAccounts) UpdateBalance(_ context.Context, riderID string, prev, next models.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.balances[riderID]
	if !ok {
		return ErrNotFound
	}
	if cur != prev {
		return ErrStale
	}
	m.balances[riderID] = next
	return nil
}

type MemoryTransactions struct {
	mu   sync.Mutex
	txns map[string]models.Transaction
}

func NewMemoryTransactions() *MemoryTransactions {
	return &MemoryTransactions{txns: make(map[string]models.Transaction)}
}

func (m *MemoryTransactions) Insert(_ context.Context, txn *models.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.ReferenceID != "" {
		for _, existing := range m.txns {
			if existing.ReferenceID == txn.ReferenceID {
				return "", ErrConflict
			}
		}
	}
	if txn.ID == "" {
		txn.ID = NewID()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	m.txns[txn.ID] = *txn
	return txn.ID, nil
}

func (m *MemoryTransactions) Settle(_ context.Context, id string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok {
		return ErrNotFound
	}
	txn.Hold = false
	txn.Amount = amount
	m.txns[id] = txn
	return nil
}

func (m *MemoryTransactions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[id]; !ok {
		return ErrNotFound
	}
	delete(m.txns, id)
	return nil
}

func (m *MemoryTransactions) FindByID(_ context.Context, id string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok {
		return models.Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (m *MemoryTransactions) FindByReferenceID(_ context.Context, ref string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.txns {
		if txn.ReferenceID == ref {
			return txn, nil
		}
	}
	return models.Transaction{}, ErrNotFound
}

type MemoryTrips struct {
	mu    sync.Mutex
	trips map[string]models.Trip
}

func NewMemoryTrips() *MemoryTrips {
	return &MemoryTrips{trips: make(map[string]models.Trip)}
}

func (m *MemoryTrips) InsertOpen(_ context.Context, trip *models.Trip) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.trips {
		if existing.RiderID == trip.RiderID && !existing.Ended {
			return "", ErrConflict
		}
	}
	if trip.ID == "" {
		trip.ID = NewID()
	}
	trip.Ended = false
	m.trips[trip.ID] = *trip
	return trip.ID, nil
}

func (m *MemoryTrips) MarkEnded(_ context.Context, id string, end TripEnd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	trip.EndStationID = end.EndStationID
	trip.EndGateID = end.EndGateID
	trip.TierName = end.TierName
	trip.StationCount = end.StationCount
	trip.EndedAt = &now
	trip.Ended = true
	m.trips[id] = trip
	return nil
}

func (m *MemoryTrips) FindByID(_ context.Context, id string) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[id]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	return trip, nil
}

func (m *MemoryTrips) FindOpenForRider(_ context.Context, riderID string) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trip := range m.trips {
		if trip.RiderID == riderID && !trip.Ended {
			return trip, nil
		}
	}
	return models.Trip{}, ErrNotFound
}

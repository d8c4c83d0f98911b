package models

import "time"

// Amounts are carried as int64 minor currency units (piasters) throughout.
// Integer arithmetic keeps the hold/settle bookkeeping exact.

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Station is static reference data loaded at process start.
type Station struct {
	ID         int    `json:"id"`
	NameEN     string `json:"name_en"`
	NameAR     string `json:"name_ar"`
	Loc        Coord  `json:"loc"`
	LineNumber int    `json:"line_number"`
}

type GateType string

const (
	GateEntry GateType = "entry"
	GateExit  GateType = "exit"
)

type Gate struct {
	ID          string   `json:"id"`
	StationID   int      `json:"station_id"`
	Number      int      `json:"gate_number"`
	Type        GateType `json:"type"`
	Operational bool     `json:"is_operational"`
}

// Balance is a rider's funds split: available spend and funds held
// against an open trip.
type Balance struct {
	Available int64 `json:"available"`
	Holding   int64 `json:"holding"`
}

type Trip struct {
	ID             string     `json:"id"`
	RiderID        string     `json:"rider_id"`
	StartStationID int        `json:"start_station_id"`
	StartGateID    string     `json:"start_gate_id"`
	EndStationID   int        `json:"end_station_id,omitempty"`
	EndGateID      string     `json:"end_gate_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	TransactionID  string     `json:"transaction_id"`
	PartySize      int        `json:"party_size"`
	TierName       string     `json:"tier_name,omitempty"`
	StationCount   int        `json:"station_count,omitempty"`
	Ended          bool       `json:"is_ended"`
}

type Transaction struct {
	ID          string    `json:"id"`
	RiderID     string    `json:"rider_id"`
	Amount      int64     `json:"amount"`
	Debit       bool      `json:"is_debit"`
	Hold        bool      `json:"is_hold"`
	ReferenceID string    `json:"reference_id,omitempty"` // recharge idempotency key
	Method      string    `json:"payment_method,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TripEvent is published to Kafka on gate entry and exit.
type TripEvent struct {
	Type         string    `json:"type"` // trip.started | trip.ended
	TripID       string    `json:"trip_id"`
	RiderID      string    `json:"rider_id"`
	StationID    int       `json:"station_id"`
	GateID       string    `json:"gate_id"`
	PartySize    int       `json:"party_size"`
	Amount       int64     `json:"amount"` // held at entry, settled at exit
	TierName     string    `json:"tier_name,omitempty"`
	StationCount int       `json:"station_count,omitempty"`
	At           time.Time `json:"at"`
}

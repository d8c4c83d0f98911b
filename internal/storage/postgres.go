package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/khaledhegab/ets-backend-final/internal/fares"
	"github.com/khaledhegab/ets-backend-final/internal/models"
)

const uniqueViolation = "23505"

// OpenPostgres connects and pings the fare datastore.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type PostgresAccounts struct {
	DB *sql.DB
}

func (p *PostgresAccounts) GetBalance(ctx context.Context, riderID string) (models.Balance, error) {
	var b models.Balance
	err := p.DB.QueryRowContext(ctx,
		`SELECT available_balance, holding_balance FROM riders WHERE id = $1`,
		riderID).Scan(&b.Available, &b.Holding)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Balance{}, ErrNotFound
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// UpdateBalance is a compare-and-swap: the WHERE clause pins the row to
// the previously read values so a concurrent recharge or settlement
// cannot be silently overwritten.
func (p *PostgresAccounts) UpdateBalance(ctx context.Context, riderID string, prev, next models.Balance) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE riders SET available_balance = $1, holding_balance = $2
		 WHERE id = $3 AND available_balance = $4 AND holding_balance = $5`,
		next.Available, next.Holding, riderID, prev.Available, prev.Holding)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		// Distinguish a vanished rider from a raced write.
		var exists bool
		if err := p.DB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM riders WHERE id = $1)`, riderID).Scan(&exists); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStale
	}
	return nil
}

type PostgresTransactions struct {
	DB *sql.DB
}

func (p *PostgresTransactions) Insert(ctx context.Context, txn *models.Transaction) (string, error) {
	if txn.ID == "" {
		txn.ID = NewID()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO transactions(id, rider_id, amount, is_debit, is_hold, reference_id, payment_method, created_at)
		 VALUES($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		txn.ID, txn.RiderID, txn.Amount, txn.Debit, txn.Hold, txn.ReferenceID, txn.Method, txn.CreatedAt)
	if isUniqueViolation(err) {
		return "", ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return txn.ID, nil
}

func (p *PostgresTransactions) Settle(ctx context.Context, id string, amount int64) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE transactions SET is_hold = FALSE, amount = $1, created_at = $2 WHERE id = $3`,
		amount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	return requireRow(res)
}

func (p *PostgresTransactions) Delete(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

func (p *PostgresTransactions) FindByID(ctx context.Context, id string) (models.Transaction, error) {
	return p.findWhere(ctx, `id = $1`, id)
}

func (p *PostgresTransactions) FindByReferenceID(ctx context.Context, ref string) (models.Transaction, error) {
	return p.findWhere(ctx, `reference_id = $1`, ref)
}

func (p *PostgresTransactions) findWhere(ctx context.Context, clause string, arg any) (models.Transaction, error) {
	var (
		txn models.Transaction
		ref sql.NullString
	)
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, rider_id, amount, is_debit, is_hold, reference_id, payment_method, created_at
		 FROM transactions WHERE `+clause, arg).
		Scan(&txn.ID, &txn.RiderID, &txn.Amount, &txn.Debit, &txn.Hold, &ref, &txn.Method, &txn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	txn.ReferenceID = ref.String
	return txn, nil
}

type PostgresTrips struct {
	DB *sql.DB
}

// InsertOpen relies on the partial unique index on trips(rider_id) WHERE
// NOT is_ended; the insert itself serializes racing gate entries.
func (p *PostgresTrips) InsertOpen(ctx context.Context, trip *models.Trip) (string, error) {
	if trip.ID == "" {
		trip.ID = NewID()
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO trips(id, rider_id, start_station_id, start_gate_id, start_at, transaction_id, number_of_clients, is_ended)
		 VALUES($1, $2, $3, $4, $5, $6, $7, FALSE)`,
		trip.ID, trip.RiderID, trip.StartStationID, trip.StartGateID, trip.StartedAt, trip.TransactionID, trip.PartySize)
	if isUniqueViolation(err) {
		return "", ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("insert trip: %w", err)
	}
	return trip.ID, nil
}

func (p *PostgresTrips) MarkEnded(ctx context.Context, id string, end TripEnd) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE trips SET end_station_id = $1, end_gate_id = $2, end_at = $3, is_ended = TRUE,
		        ticket_type = $4, number_of_stations = $5
		 WHERE id = $6`,
		end.EndStationID, end.EndGateID, time.Now(), end.TierName, end.StationCount, id)
	if err != nil {
		return fmt.Errorf("end trip: %w", err)
	}
	return requireRow(res)
}

func (p *PostgresTrips) FindByID(ctx context.Context, id string) (models.Trip, error) {
	return p.findWhere(ctx, `id = $1`, id)
}

func (p *PostgresTrips) FindOpenForRider(ctx context.Context, riderID string) (models.Trip, error) {
	return p.findWhere(ctx, `rider_id = $1 AND NOT is_ended`, riderID)
}

func (p *PostgresTrips) findWhere(ctx context.Context, clause string, arg any) (models.Trip, error) {
	var (
		trip         models.Trip
		endStation   sql.NullInt64
		endGate      sql.NullString
		endAt        sql.NullTime
		tierName     sql.NullString
		stationCount sql.NullInt64
	)
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, rider_id, start_station_id, start_gate_id, end_station_id, end_gate_id,
		        start_at, end_at, transaction_id, number_of_clients, ticket_type, number_of_stations, is_ended
		 FROM trips WHERE `+clause, arg).
		Scan(&trip.ID, &trip.RiderID, &trip.StartStationID, &trip.StartGateID, &endStation, &endGate,
			&trip.StartedAt, &endAt, &trip.TransactionID, &trip.PartySize, &tierName, &stationCount, &trip.Ended)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, ErrNotFound
	}
	if err != nil {
		return models.Trip{}, fmt.Errorf("find trip: %w", err)
	}
	trip.EndStationID = int(endStation.Int64)
	trip.EndGateID = endGate.String
	trip.TierName = tierName.String
	trip.StationCount = int(stationCount.Int64)
	if endAt.Valid {
		t := endAt.Time
		trip.EndedAt = &t
	}
	return trip, nil
}

// PostgresPrices resolves tier prices from the ticket_type table.
type PostgresPrices struct {
	DB *sql.DB
}

func (p *PostgresPrices) PriceOf(ctx context.Context, tierName string) (int64, error) {
	var price int64
	err := p.DB.QueryRowContext(ctx,
		`SELECT price FROM ticket_type WHERE type_name = $1`, tierName).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fares.ErrTierNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("price of %q: %w", tierName, err)
	}
	return price, nil
}

// PostgresGates resolves gate ids for the station auth middleware.
type PostgresGates struct {
	DB *sql.DB
}

func (p *PostgresGates) Gate(ctx context.Context, gateID string) (models.Gate, error) {
	var g models.Gate
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, station_id, gate_number, type, is_operational FROM gates WHERE id = $1`,
		gateID).Scan(&g.ID, &g.StationID, &g.Number, &g.Type, &g.Operational)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Gate{}, ErrNotFound
	}
	if err != nil {
		return models.Gate{}, fmt.Errorf("find gate: %w", err)
	}
	return g, nil
}

func (p *PostgresGates) Station(ctx context.Context, stationID int) (models.Station, error) {
	var s models.Station
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, name_en, name_ar, latitude, longitude, line_number FROM stations WHERE id = $1`,
		stationID).Scan(&s.ID, &s.NameEN, &s.NameAR, &s.Loc.Lat, &s.Loc.Lon, &s.LineNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Station{}, ErrNotFound
	}
	if err != nil {
		return models.Station{}, fmt.Errorf("find station: %w", err)
	}
	return s, nil
}

func (p *PostgresGates) AllStations(ctx context.Context) ([]models.Station, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, name_en, name_ar, latitude, longitude, line_number FROM stations`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()
	var out []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.NameEN, &s.NameAR, &s.Loc.Lat, &s.Loc.Lon, &s.LineNumber); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

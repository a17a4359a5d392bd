package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukydev/iotfleet/internal/models"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id                  TEXT PRIMARY KEY,
		license_plate       TEXT NOT NULL,
		brand               TEXT NOT NULL DEFAULT '',
		model               TEXT NOT NULL DEFAULT '',
		fuel_capacity       DOUBLE PRECISION NOT NULL,
		average_consumption DOUBLE PRECISION NOT NULL,
		fleet_id            TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_maintenance    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id                  TEXT PRIMARY KEY,
		vehicle_id          TEXT NOT NULL,
		latitude            DOUBLE PRECISION NOT NULL,
		longitude           DOUBLE PRECISION NOT NULL,
		altitude            DOUBLE PRECISION,
		speed               DOUBLE PRECISION,
		fuel_level          DOUBLE PRECISION NOT NULL,
		fuel_consumption    DOUBLE PRECISION,
		engine_temperature  DOUBLE PRECISION NOT NULL,
		ambient_temperature DOUBLE PRECISION,
		timestamp           TIMESTAMPTZ NOT NULL,
		seq                 BIGSERIAL
	)`,
	`ALTER TABLE sensor_readings ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_vehicle_time
		ON sensor_readings (vehicle_id, timestamp DESC)`,
}

var readingColumns = []string{
	"id",
	"vehicle_id",
	"latitude",
	"longitude",
	"altitude",
	"speed",
	"fuel_level",
	"fuel_consumption",
	"engine_temperature",
	"ambient_temperature",
	"timestamp",
}

const selectReading = `SELECT id, vehicle_id, latitude, longitude, altitude, speed, fuel_level,
	fuel_consumption, engine_temperature, ambient_temperature, timestamp FROM sensor_readings`

const selectVehicle = `SELECT id, license_plate, brand, model, fuel_capacity, average_consumption,
	fleet_id, created_at, last_maintenance FROM vehicles`

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	pending []models.SensorReading
}

// NewPostgresStore opens a pool, pings it and ensures the schema.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates tables and indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schemaStatements {
		batch.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range schemaStatements {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ListVehicles returns every vehicle ordered by license plate.
func (s *PostgresStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := s.pool.Query(ctx, selectVehicle+` ORDER BY license_plate`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return pgx.CollectRows(rows, scanVehicle)
}

// FindVehicleByID finds a vehicle by its ID.
func (s *PostgresStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	rows, err := s.pool.Query(ctx, selectVehicle+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("find vehicle: %w", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVehicle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return &v, nil
}

// InsertVehicle upserts a vehicle by its ID.
func (s *PostgresStore) InsertVehicle(ctx context.Context, v models.Vehicle) error {
	query := `
		INSERT INTO vehicles
			(id, license_plate, brand, model, fuel_capacity, average_consumption, fleet_id, created_at, last_maintenance)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			license_plate = EXCLUDED.license_plate,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			fuel_capacity = EXCLUDED.fuel_capacity,
			average_consumption = EXCLUDED.average_consumption,
			fleet_id = EXCLUDED.fleet_id,
			last_maintenance = EXCLUDED.last_maintenance
	`
	_, err := s.pool.Exec(ctx, query,
		v.ID,
		v.LicensePlate,
		v.Brand,
		v.Model,
		v.FuelCapacity,
		v.AverageConsumption,
		v.FleetID,
		v.CreatedAt,
		v.LastMaintenance,
	)
	return err
}

// AppendReading buffers a reading until the next CommitBatch.
func (s *PostgresStore) AppendReading(ctx context.Context, reading models.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, reading)
	return nil
}

// CommitBatch copies all pending readings in one COPY.
// Pending readings are dropped even when the copy fails.
func (s *PostgresStore) CommitBatch(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(batch))
	for i, r := range batch {
		rows[i] = []interface{}{
			r.ID,
			r.VehicleID,
			r.Latitude,
			r.Longitude,
			r.Altitude,
			r.Speed,
			r.FuelLevel,
			r.FuelConsumption,
			r.EngineTemperature,
			r.AmbientTemperature,
			r.Timestamp,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"sensor_readings"},
		readingColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(batch), err)
	}
	return nil
}

// InsertReading writes one reading outside the pending batch.
func (s *PostgresStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	query := `
		INSERT INTO sensor_readings
			(id, vehicle_id, latitude, longitude, altitude, speed, fuel_level,
			 fuel_consumption, engine_temperature, ambient_temperature, timestamp)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		r.ID,
		r.VehicleID,
		r.Latitude,
		r.Longitude,
		r.Altitude,
		r.Speed,
		r.FuelLevel,
		r.FuelConsumption,
		r.EngineTemperature,
		r.AmbientTemperature,
		r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadingsForVehicle returns the vehicle's readings ordered by timestamp,
// then by insertion.
func (s *PostgresStore) ListReadingsForVehicle(ctx context.Context, vehicleID string, newestFirst bool) ([]models.SensorReading, error) {
	order := "timestamp ASC, seq ASC"
	if newestFirst {
		order = "timestamp DESC, seq DESC"
	}
	rows, err := s.pool.Query(ctx, selectReading+` WHERE vehicle_id = $1 ORDER BY `+order, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return pgx.CollectRows(rows, scanReading)
}

// DeleteReadings removes readings by id.
func (s *PostgresStore) DeleteReadings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sensor_readings WHERE id = ANY($1)`, ids)
	return err
}

// CountReadings returns the number of stored readings.
func (s *PostgresStore) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// LatestReading returns the most recent reading of a vehicle.
func (s *PostgresStore) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	rows, err := s.pool.Query(ctx, selectReading+` WHERE vehicle_id = $1 ORDER BY timestamp DESC, seq DESC LIMIT 1`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return oneReading(rows)
}

// NewestReading returns the most recent reading across all vehicles.
func (s *PostgresStore) NewestReading(ctx context.Context) (*models.SensorReading, error) {
	rows, err := s.pool.Query(ctx, selectReading+` ORDER BY timestamp DESC, seq DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("newest reading: %w", err)
	}
	return oneReading(rows)
}

// Close releases the pool.
func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func oneReading(rows pgx.Rows) (*models.SensorReading, error) {
	r, err := pgx.CollectExactlyOneRow(rows, scanReading)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoReadings
		}
		return nil, err
	}
	return &r, nil
}

func scanReading(row pgx.CollectableRow) (models.SensorReading, error) {
	var r models.SensorReading
	err := row.Scan(
		&r.ID,
		&r.VehicleID,
		&r.Latitude,
		&r.Longitude,
		&r.Altitude,
		&r.Speed,
		&r.FuelLevel,
		&r.FuelConsumption,
		&r.EngineTemperature,
		&r.AmbientTemperature,
		&r.Timestamp,
	)
	return r, err
}

func scanVehicle(row pgx.CollectableRow) (models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(
		&v.ID,
		&v.LicensePlate,
		&v.Brand,
		&v.Model,
		&v.FuelCapacity,
		&v.AverageConsumption,
		&v.FleetID,
		&v.CreatedAt,
		&v.LastMaintenance,
	)
	return v, err
}

package db

import (
	"context"
	"sort"
	"sync"

	"github.com/ukydev/iotfleet/internal/models"
)

// MemoryStore keeps vehicles and readings in process memory. It is the
// default backend for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
	order    []string
	readings map[string][]models.SensorReading
	pending  []models.SensorReading
	total    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: make(map[string]models.Vehicle),
		readings: make(map[string][]models.SensorReading),
	}
}

// ListVehicles returns vehicles in insertion order.
func (s *MemoryStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.vehicles[id])
	}
	return out, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (s *MemoryStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	return &v, nil
}

// InsertVehicle inserts or replaces a vehicle.
func (s *MemoryStore) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[vehicle.ID]; !ok {
		s.order = append(s.order, vehicle.ID)
	}
	s.vehicles[vehicle.ID] = vehicle
	return nil
}

// AppendReading buffers a reading until the next CommitBatch.
func (s *MemoryStore) AppendReading(ctx context.Context, reading models.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, reading)
	return nil
}

// CommitBatch makes all pending readings visible.
func (s *MemoryStore) CommitBatch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.pending {
		s.readings[r.VehicleID] = append(s.readings[r.VehicleID], r)
	}
	s.total += int64(len(s.pending))
	s.pending = nil
	return nil
}

// InsertReading stores one reading immediately, bypassing the pending batch.
func (s *MemoryStore) InsertReading(ctx context.Context, reading models.SensorReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings[reading.VehicleID] = append(s.readings[reading.VehicleID], reading)
	s.total++
	return nil
}

// ListReadingsForVehicle returns committed readings ordered by timestamp.
// Equal timestamps keep insertion order, reversed when newestFirst.
func (s *MemoryStore) ListReadingsForVehicle(ctx context.Context, vehicleID string, newestFirst bool) ([]models.SensorReading, error) {
	s.mu.RLock()
	stored := s.readings[vehicleID]
	out := make([]models.SensorReading, len(stored))
	for i, r := range stored {
		if newestFirst {
			out[len(stored)-1-i] = r
		} else {
			out[i] = r
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// DeleteReadings removes committed readings by id. Unknown ids are ignored.
func (s *MemoryStore) DeleteReadings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for vehicleID, rs := range s.readings {
		kept := rs[:0]
		for _, r := range rs {
			if _, ok := drop[r.ID]; ok {
				s.total--
				continue
			}
			kept = append(kept, r)
		}
		s.readings[vehicleID] = kept
	}
	return nil
}

// CountReadings returns the number of committed readings.
func (s *MemoryStore) CountReadings(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, nil
}

// LatestReading returns the most recent committed reading of a vehicle.
func (s *MemoryStore) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := newest(s.readings[vehicleID])
	if !ok {
		return nil, ErrNoReadings
	}
	return &latest, nil
}

// NewestReading returns the most recent committed reading across all vehicles.
func (s *MemoryStore) NewestReading(ctx context.Context) (*models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  models.SensorReading
		found bool
	)
	for _, rs := range s.readings {
		r, ok := newest(rs)
		if ok && (!found || r.Timestamp.After(best.Timestamp)) {
			best, found = r, true
		}
	}
	if !found {
		return nil, ErrNoReadings
	}
	return &best, nil
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func newest(rs []models.SensorReading) (models.SensorReading, bool) {
	if len(rs) == 0 {
		return models.SensorReading{}, false
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if !r.Timestamp.Before(best.Timestamp) {
			best = r
		}
	}
	return best, true
}

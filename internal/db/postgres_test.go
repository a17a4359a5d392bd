package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/iotfleet/internal/models"
)

// Integration test (requires running PostgreSQL)
func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
		return
	}
	defer s.Close(context.Background())

	fleet := uuid.NewString()
	vehicleID := uuid.NewString()
	require.NoError(t, s.InsertVehicle(ctx, models.Vehicle{
		ID:                 vehicleID,
		LicensePlate:       "PG-001",
		FuelCapacity:       70,
		AverageConsumption: 7.8,
		FleetID:            &fleet,
		CreatedAt:          time.Now().UTC(),
	}))
	v, err := s.FindVehicleByID(ctx, vehicleID)
	require.NoError(t, err)
	assert.True(t, v.InFleet(fleet))

	_, err = s.FindVehicleByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrVehicleNotFound)

	base := time.Now().UTC().Truncate(time.Microsecond)
	first := reading(uuid.NewString(), vehicleID, base)
	first.Speed = models.Float(42)
	second := reading(uuid.NewString(), vehicleID, base.Add(time.Second))
	require.NoError(t, s.AppendReading(ctx, first))
	require.NoError(t, s.AppendReading(ctx, second))
	require.NoError(t, s.CommitBatch(ctx))

	rs, err := s.ListReadingsForVehicle(ctx, vehicleID, false)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, first.ID, rs[0].ID)
	require.NotNil(t, rs[0].Speed)
	assert.Equal(t, 42.0, *rs[0].Speed)
	assert.Nil(t, rs[1].Speed)

	tied := reading(uuid.NewString(), vehicleID, second.Timestamp)
	require.NoError(t, s.InsertReading(ctx, tied))
	latest, err := s.LatestReading(ctx, vehicleID)
	require.NoError(t, err)
	assert.Equal(t, tied.ID, latest.ID)

	require.NoError(t, s.DeleteReadings(ctx, []string{first.ID, second.ID, tied.ID}))
	_, err = s.LatestReading(ctx, vehicleID)
	assert.ErrorIs(t, err, ErrNoReadings)
}

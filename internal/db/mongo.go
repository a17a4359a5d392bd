package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/iotfleet/internal/models"
)

const (
	vehiclesCollection = "vehicles"
	readingsCollection = "sensor_readings"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoStore implements Store on two MongoDB collections.
type MongoStore struct {
	client   *mongo.Client
	Vehicles *mongo.Collection
	Readings *mongo.Collection

	mu      sync.Mutex
	pending []interface{}
	seq     atomic.Int64
}

// readingDoc is a stored reading plus the insertion sequence that orders
// readings with equal timestamps.
type readingDoc struct {
	models.SensorReading `bson:",inline"`
	Seq                  int64 `bson:"seq"`
}

// NewMongoStore connects and ensures the reading index exists.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	database := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		Vehicles: database.Collection(vehiclesCollection),
		Readings: database.Collection(readingsCollection),
	}
	s.seq.Store(time.Now().UnixNano())
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the (vehicle_id, timestamp) index used by every
// per-vehicle query.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if s.Readings == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := s.Readings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create reading index: %w", err)
	}
	return nil
}

// ListVehicles returns every vehicle ordered by license plate.
func (s *MongoStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	if s.Vehicles == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := s.Vehicles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "license_plate", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (s *MongoStore) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if s.Vehicles == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var vehicle models.Vehicle
	err := s.Vehicles.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}
	return &vehicle, nil
}

// InsertVehicle upserts a vehicle by its ID.
func (s *MongoStore) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if s.Vehicles == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := s.Vehicles.ReplaceOne(ctx, bson.M{"_id": vehicle.ID}, vehicle, options.Replace().SetUpsert(true))
	return err
}

// AppendReading buffers a reading until the next CommitBatch.
func (s *MongoStore) AppendReading(ctx context.Context, reading models.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, readingDoc{SensorReading: reading, Seq: s.seq.Add(1)})
	return nil
}

// InsertReading writes one reading outside the pending batch.
func (s *MongoStore) InsertReading(ctx context.Context, reading models.SensorReading) error {
	if s.Readings == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if _, err := s.Readings.InsertOne(ctx, readingDoc{SensorReading: reading, Seq: s.seq.Add(1)}); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// CommitBatch writes all pending readings with a single unordered InsertMany.
// Pending readings are dropped even when the write fails.
func (s *MongoStore) CommitBatch(ctx context.Context) error {
	s.mu.Lock()
	docs := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(docs) == 0 {
		return nil
	}
	if s.Readings == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if _, err := s.Readings.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert batch of %d readings: %w", len(docs), err)
	}
	return nil
}

// ListReadingsForVehicle returns the vehicle's readings ordered by timestamp.
func (s *MongoStore) ListReadingsForVehicle(ctx context.Context, vehicleID string, newestFirst bool) ([]models.SensorReading, error) {
	if s.Readings == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	direction := 1
	if newestFirst {
		direction = -1
	}
	cursor, err := s.Readings.Find(ctx,
		bson.M{"vehicle_id": vehicleID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: direction}, {Key: "seq", Value: direction}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var readings []models.SensorReading
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// DeleteReadings removes readings by id.
func (s *MongoStore) DeleteReadings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.Readings == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := s.Readings.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

// CountReadings returns the number of stored readings.
func (s *MongoStore) CountReadings(ctx context.Context) (int64, error) {
	if s.Readings == nil {
		return 0, fmt.Errorf("mongo collection is nil")
	}
	return s.Readings.CountDocuments(ctx, bson.M{})
}

// LatestReading returns the most recent reading of a vehicle.
func (s *MongoStore) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	return s.findNewest(ctx, bson.M{"vehicle_id": vehicleID})
}

// NewestReading returns the most recent reading across all vehicles.
func (s *MongoStore) NewestReading(ctx context.Context) (*models.SensorReading, error) {
	return s.findNewest(ctx, bson.M{})
}

func (s *MongoStore) findNewest(ctx context.Context, filter bson.M) (*models.SensorReading, error) {
	if s.Readings == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var reading models.SensorReading
	err := s.Readings.FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}),
	).Decode(&reading)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoReadings
		}
		return nil, err
	}
	return &reading, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

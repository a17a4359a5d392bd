package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ukydev/iotfleet/internal/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// MockIngester is a mock implementation of Ingester
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, r models.SensorReading) (Result, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(Result), args.Error(1)
}

func TestVehicleFromTopic(t *testing.T) {
	assert.Equal(t, "abc", vehicleFromTopic("fleet/abc/readings"))
	assert.Equal(t, "", vehicleFromTopic("fleet/abc"))
	assert.Equal(t, "", vehicleFromTopic("other/abc/readings"))
	assert.Equal(t, "", vehicleFromTopic("fleet/abc/alerts"))
}

func TestHandleMessage_VehicleFromTopic(t *testing.T) {
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.MatchedBy(func(r models.SensorReading) bool {
		return r.VehicleID == "v42" && r.FuelLevel == 33
	})).Return(Result{ReadingID: "r1"}, nil)

	s := NewSubscriber("tcp://localhost:1883", "test", "fleet/+/readings", ing, nil)
	s.handleMessage(nil, fakeMessage{
		topic:   "fleet/v42/readings",
		payload: []byte(`{"latitude":4.6,"longitude":-74.1,"fuel_level":33}`),
	})

	ing.AssertExpectations(t)
}

func TestHandleMessage_PayloadVehicleWins(t *testing.T) {
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.MatchedBy(func(r models.SensorReading) bool {
		return r.VehicleID == "from-payload"
	})).Return(Result{}, ErrInvalidReading)

	s := NewSubscriber("tcp://localhost:1883", "test", "fleet/+/readings", ing, nil)
	s.handleMessage(nil, fakeMessage{
		topic:   "fleet/from-topic/readings",
		payload: []byte(`{"vehicle_id":"from-payload","fuel_level":10}`),
	})

	ing.AssertExpectations(t)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	ing := new(MockIngester)
	s := NewSubscriber("tcp://localhost:1883", "test", "fleet/+/readings", ing, nil)

	s.handleMessage(nil, fakeMessage{topic: "fleet/v1/readings", payload: []byte("{not json")})

	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestHandleMessage_IngestErrorIsSwallowed(t *testing.T) {
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.Anything).Return(Result{}, errors.New("db down"))

	s := NewSubscriber("tcp://localhost:1883", "test", "fleet/+/readings", ing, nil)
	assert.NotPanics(t, func() {
		s.handleMessage(nil, fakeMessage{topic: "fleet/v1/readings", payload: []byte(`{"fuel_level":10}`)})
	})
	ing.AssertNumberOfCalls(t, "Ingest", 1)
}

func TestStop_WithoutStart(t *testing.T) {
	s := NewSubscriber("tcp://localhost:1883", "test", "fleet/+/readings", new(MockIngester), nil)
	assert.NotPanics(t, s.Stop)
}

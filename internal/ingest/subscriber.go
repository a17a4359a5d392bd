package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	ingestTimeout  = 10 * time.Second
	subscribeQoS   = 1
)

// Ingester is the part of Service the subscriber depends on.
type Ingester interface {
	Ingest(ctx context.Context, r models.SensorReading) (Result, error)
}

// Subscriber consumes device readings from an MQTT topic such as
// fleet/+/readings. The wildcard segment supplies the vehicle id when the
// payload has none.
type Subscriber struct {
	broker   string
	clientID string
	topic    string
	ingester Ingester
	log      log.FieldLogger

	client mqtt.Client
}

// NewSubscriber creates an unconnected subscriber.
func NewSubscriber(broker, clientID, topic string, ingester Ingester, logger log.FieldLogger) *Subscriber {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Subscriber{
		broker:   broker,
		clientID: clientID,
		topic:    topic,
		ingester: ingester,
		log:      logger.WithFields(log.Fields{"component": "mqtt", "topic": topic}),
	}
}

// Start connects and subscribes. The subscription is renewed on every
// reconnect.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(s.topic, subscribeQoS, s.handleMessage)
			if token.WaitTimeout(connectTimeout) && token.Error() != nil {
				s.log.WithError(token.Error()).Error("MQTT subscribe failed")
				return
			}
			s.log.Info("Subscribed to device readings")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.WithError(err).Warn("MQTT connection lost")
		})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", s.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	logger := s.log.WithField("message_topic", msg.Topic())

	var reading models.SensorReading
	if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
		logger.WithError(err).Warn("Discarding malformed device reading")
		return
	}
	if reading.VehicleID == "" {
		reading.VehicleID = vehicleFromTopic(msg.Topic())
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	res, err := s.ingester.Ingest(ctx, reading)
	if err != nil {
		entry := logger.WithError(err).WithField("vehicle_id", reading.VehicleID)
		if errors.Is(err, ErrInvalidReading) {
			entry.Warn("Rejected device reading")
			return
		}
		entry.Error("Failed to ingest device reading")
		return
	}
	logger.WithField("reading_id", res.ReadingID).Debug("Device reading ingested")
}

// vehicleFromTopic extracts <id> from fleet/<id>/readings.
func vehicleFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "fleet" && parts[2] == "readings" {
		return parts[1]
	}
	return ""
}

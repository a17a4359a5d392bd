// Package notify pushes telemetry and alerts to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event names carried in every envelope.
const (
	EventLocationUpdate   = "LocationUpdate"
	EventSensorDataUpdate = "SensorDataUpdate"
	EventSensorData       = "SensorData"
	EventFuelAlert        = "FuelAlert"
)

// GroupAdmin receives every fuel alert.
const GroupAdmin = "Admin"

// VehicleGroup names the group subscribed to one vehicle.
func VehicleGroup(vehicleID string) string {
	return "Vehicle_" + vehicleID
}

// FleetGroup names the group subscribed to one fleet.
func FleetGroup(fleetID string) string {
	return "Fleet_" + fleetID
}

// Notifier delivers events to all subscribers or to one group. Implementations
// must not block on slow subscribers.
type Notifier interface {
	SendToAll(ctx context.Context, event string, payload interface{}) error
	SendToGroup(ctx context.Context, group, event string, payload interface{}) error
}

// Envelope is the wire format shared by the websocket hub and Redis.
type Envelope struct {
	Event  string          `json:"event"`
	Group  string          `json:"group,omitempty"`
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data"`
}

func encode(origin, group, event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Group: group, Origin: origin, Data: data})
}

// Multi fans out to several notifiers. Every notifier is tried; failures are
// joined.
type Multi []Notifier

// SendToAll implements Notifier.
func (m Multi) SendToAll(ctx context.Context, event string, payload interface{}) error {
	var errs []error
	for _, n := range m {
		if err := n.SendToAll(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendToGroup implements Notifier.
func (m Multi) SendToGroup(ctx context.Context, group, event string, payload interface{}) error {
	var errs []error
	for _, n := range m {
		if err := n.SendToGroup(ctx, group, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) SendToAll(context.Context, string, interface{}) error { return nil }

func (Discard) SendToGroup(context.Context, string, string, interface{}) error { return nil }

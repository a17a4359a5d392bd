package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ukydev/iotfleet/internal/models"
)

// Publisher delivers one reading to the pipeline.
type Publisher interface {
	Publish(ctx context.Context, r models.SensorReading) error
}

type httpPublisher struct {
	apiURL    string
	authToken string
	client    *http.Client
}

func newHTTPPublisher(apiURL, authToken string) *httpPublisher {
	return &httpPublisher{
		apiURL:    apiURL,
		authToken: authToken,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpPublisher) authorizedPost(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}
	return p.client.Do(req)
}

func (p *httpPublisher) Publish(ctx context.Context, r models.SensorReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	resp, err := p.authorizedPost(ctx, p.apiURL+"/sensor-data", data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("ingestion failed with status: %d", resp.StatusCode)
	}
	return nil
}

type mqttPublisher struct {
	client mqtt.Client
}

func newMQTTPublisher(broker, clientID string) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return &mqttPublisher{client: client}, nil
}

func readingTopic(vehicleID string) string {
	return "fleet/" + vehicleID + "/readings"
}

func (p *mqttPublisher) Publish(ctx context.Context, r models.SensorReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	token := p.client.Publish(readingTopic(r.VehicleID), 1, false, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}

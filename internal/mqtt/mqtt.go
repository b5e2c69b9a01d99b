// Package mqtt publishes reowatch events to an MQTT broker and announces
// per-camera person sensors through Home Assistant discovery.
package mqtt

import (
	"context"
	"time"

	"github.com/reowatch/reowatch/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. Retained messages are kept by the
	// broker and replayed to new subscribers.
	Publish(ctx context.Context, topic, payload string, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect publishes the offline status and closes the connection.
	Disconnect()

	// SetOnConnect registers fn to run after every successful connection,
	// including automatic reconnects.
	SetOnConnect(fn func())
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // prefix for every published topic
	Retain   bool   // retain event messages, person state is always retained

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnect      time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnect:      5 * time.Minute,
	}
}

// Status payloads published on the availability topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Person state payloads.
const (
	PersonOn  = "ON"
	PersonOff = "OFF"
)

var log = logger.Global().Module("mqtt")

// discovery.go: Home Assistant MQTT auto-discovery for camera person sensors.
// See: https://www.home-assistant.io/integrations/binary_sensor.mqtt/
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reowatch/reowatch/internal/errors"
)

// deviceIDPrefix is the standard prefix for all reowatch device identifiers
const deviceIDPrefix = "reowatch"

// DefaultDiscoveryPrefix is Home Assistant's default discovery topic root.
const DefaultDiscoveryPrefix = "homeassistant"

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	DeviceClass         string           `json:"device_class,omitempty"`
	PayloadOn           string           `json:"payload_on"`
	PayloadOff          string           `json:"payload_off"`
	Icon                string           `json:"icon,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic for state messages
	NodeID          string // Node identifier (typically main.name from config)
	Version         string // Software version
}

// DiscoveryPublisher publishes Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client Client
	config DiscoveryConfig
	topics Topics
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config DiscoveryConfig) *DiscoveryPublisher {
	if config.DiscoveryPrefix == "" {
		config.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if config.NodeID == "" {
		config.NodeID = deviceIDPrefix
	}
	return &DiscoveryPublisher{
		client: client,
		config: config,
		topics: Topics{Prefix: config.BaseTopic},
	}
}

// PublishDiscovery announces a person binary sensor for every camera.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context, cameras []string) error {
	var errs []error
	for _, cam := range cameras {
		payload := p.personSensor(cam)
		data, err := json.Marshal(payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.client.Publish(ctx, p.sensorTopic(cam), string(data), true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "publish_discovery").
			Build()
	}
	log.Debug("published home assistant discovery")
	return nil
}

// RemoveDiscovery clears the retained discovery config for cameras.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context, cameras []string) error {
	var errs []error
	for _, cam := range cameras {
		if err := p.client.Publish(ctx, p.sensorTopic(cam), "", true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *DiscoveryPublisher) personSensor(camera string) DiscoveryPayload {
	id := p.deviceID(camera)
	return DiscoveryPayload{
		Name:                "Person",
		UniqueID:            id + "_person",
		StateTopic:          p.topics.Person(camera),
		DeviceClass:         "occupancy",
		PayloadOn:           PersonOn,
		PayloadOff:          PersonOff,
		Icon:                "mdi:cctv",
		AvailabilityTopic:   p.topics.Status(),
		PayloadAvailable:    StatusOnline,
		PayloadNotAvailable: StatusOffline,
		Device: DiscoveryDevice{
			Identifiers:  []string{id},
			Name:         camera,
			Manufacturer: "Reolink",
			Model:        "IP camera",
			SWVersion:    p.config.Version,
		},
		Origin: &DiscoveryOrigin{Name: "reowatch", SWVersion: p.config.Version},
	}
}

func (p *DiscoveryPublisher) deviceID(camera string) string {
	return fmt.Sprintf("%s_%s_%s", deviceIDPrefix, SanitizeID(p.config.NodeID), SanitizeID(camera))
}

func (p *DiscoveryPublisher) sensorTopic(camera string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/person/config", p.config.DiscoveryPrefix, p.deviceID(camera))
}

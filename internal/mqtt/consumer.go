package mqtt

import (
	"context"
	"encoding/json"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
)

// EventConsumer forwards bus events to the broker.
type EventConsumer struct {
	client Client
	topics Topics
	retain bool
	cfg    Config
}

// NewEventConsumer returns a consumer publishing through client.
func NewEventConsumer(client Client, cfg Config) *EventConsumer {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &EventConsumer{
		client: client,
		topics: Topics{Prefix: cfg.Topic},
		retain: cfg.Retain,
		cfg:    cfg,
	}
}

// Name implements events.EventConsumer.
func (c *EventConsumer) Name() string { return "mqtt" }

// ProcessEvent publishes the event JSON and, for detection edges, the
// retained person state.
func (c *EventConsumer) ProcessEvent(event events.Event) error {
	if !c.client.IsConnected() {
		return errors.Newf("mqtt client not connected, dropping %s event", event.Kind).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("camera", event.Camera).
			Build()
	}

	payload, err := json.Marshal(NewEventDTO(event))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_event").
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	defer cancel()

	if err := c.client.Publish(ctx, c.topics.Event(event.Camera, event.Kind), string(payload), c.retain); err != nil {
		return err
	}

	switch event.Kind {
	case events.KindDetectionStarted:
		return c.client.Publish(ctx, c.topics.Person(event.Camera), PersonOn, true)
	case events.KindDetectionEnded:
		return c.client.Publish(ctx, c.topics.Person(event.Camera), PersonOff, true)
	}
	return nil
}

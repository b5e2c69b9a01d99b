package datastore

import (
	"context"
	"time"

	"github.com/reowatch/reowatch/internal/events"
)

const saveTimeout = 5 * time.Second

// Consumer indexes every saved snapshot and clip.
type Consumer struct {
	store *Store
}

// NewConsumer returns an events.EventConsumer writing to store.
func NewConsumer(store *Store) *Consumer {
	return &Consumer{store: store}
}

// Name implements events.EventConsumer.
func (c *Consumer) Name() string { return "datastore" }

// ProcessEvent implements events.EventConsumer.
func (c *Consumer) ProcessEvent(event events.Event) error {
	if event.Kind != events.KindSnapshotSaved && event.Kind != events.KindClipSaved {
		return nil
	}
	row, ok := FromEvent(event)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return c.store.Save(ctx, &row)
}

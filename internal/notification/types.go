// Package notification sends human-readable push messages for selected
// recorder events through shoutrrr services.
package notification

import (
	"context"

	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/logger"
)

// Notification is one message ready to send.
type Notification struct {
	Title   string
	Message string
	Kind    events.Kind
	Camera  string
}

// Provider delivers notifications to an external service.
type Provider interface {
	GetName() string
	Send(ctx context.Context, n *Notification) error
}

// DefaultKinds are notified when no event list is configured.
func DefaultKinds() []events.Kind {
	return []events.Kind{events.KindClipSaved, events.KindCaptureCrashed}
}

var log = logger.Global().Module("notification")

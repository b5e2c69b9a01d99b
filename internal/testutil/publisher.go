package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/events"
)

// EventRecorder is an events.Publisher that keeps everything published to it.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan struct{}
}

// NewEventRecorder returns an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

// TryPublish implements events.Publisher.
func (r *EventRecorder) TryPublish(event events.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// OfKind returns the recorded events of the given kind.
func (r *EventRecorder) OfKind(kind events.Kind) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until at least n events of kind were recorded.
func (r *EventRecorder) WaitFor(t *testing.T, kind events.Kind, n int, timeout time.Duration) []events.Event {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if got := r.OfKind(kind); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			require.Failf(t, "timed out waiting for events", "wanted %d %s events, have %d", n, kind, len(r.OfKind(kind)))
			return nil
		}
	}
}

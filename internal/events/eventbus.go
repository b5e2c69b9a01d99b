package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration. A single
// worker keeps per-camera events in publish order, which MQTT state
// topics rely on.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
		Workers:    1,
	}
}

// EventBus provides asynchronous event processing with non-blocking guarantees
type EventBus struct {
	eventChan chan Event
	workers   int

	// mu guards consumers and the open/closed state of eventChan
	mu        sync.RWMutex
	consumers []EventConsumer
	running   bool
	wg        sync.WaitGroup

	stats struct {
		received  atomic.Uint64
		processed atomic.Uint64
		dropped   atomic.Uint64
		errors    atomic.Uint64
	}

	log logger.Logger
}

// New creates a bus and starts its workers.
func New(cfg Config) *EventBus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	eb := &EventBus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		running:   true,
		log:       logger.Global().Module("events"),
	}

	for i := range cfg.Workers {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	eb.log.Debug("event bus started",
		logger.Int("buffer_size", cfg.BufferSize),
		logger.Int("workers", cfg.Workers))
	return eb
}

// RegisterConsumer adds a new event consumer
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	eb.consumers = append(eb.consumers, consumer)
	eb.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))
	return nil
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (eb *EventBus) TryPublish(event Event) bool {
	if eb == nil {
		return false
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running || len(eb.consumers) == 0 {
		return false
	}

	select {
	case eb.eventChan <- event:
		eb.stats.received.Add(1)
		return true
	default:
		eb.stats.dropped.Add(1)
		eb.log.Debug("event dropped due to full buffer",
			logger.String("kind", string(event.Kind)),
			logger.String("camera", event.Camera))
		return false
	}
}

// worker processes events until the channel is closed and drained
func (eb *EventBus) worker(id int) {
	defer eb.wg.Done()

	for event := range eb.eventChan {
		eb.processEvent(event)
	}
	eb.log.Trace("event worker stopped", logger.Int("worker_id", id))
}

// processEvent sends the event to all registered consumers
func (eb *EventBus) processEvent(event Event) {
	eb.mu.RLock()
	consumers := make([]EventConsumer, len(eb.consumers))
	copy(consumers, eb.consumers)
	eb.mu.RUnlock()

	for _, consumer := range consumers {
		eb.deliver(consumer, event)
	}
}

// deliver runs one consumer in a recovery wrapper to contain panics
func (eb *EventBus) deliver(consumer EventConsumer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.stats.errors.Add(1)
			eb.log.Error("consumer panicked",
				logger.String("consumer", consumer.Name()),
				logger.Any("panic", r),
				logger.String("kind", string(event.Kind)))
		}
	}()

	if err := consumer.ProcessEvent(event); err != nil {
		eb.stats.errors.Add(1)
		eb.log.Warn("consumer error",
			logger.String("consumer", consumer.Name()),
			logger.String("kind", string(event.Kind)),
			logger.Error(err))
		return
	}
	eb.stats.processed.Add(1)
}

// Shutdown stops accepting events and waits for queued events to be
// delivered, up to timeout.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	close(eb.eventChan)
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		eb.log.Debug("event bus shutdown complete")
		return nil
	case <-timer.C:
		eb.log.Warn("event bus shutdown timeout exceeded",
			logger.Int("pending", len(eb.eventChan)))
		return errors.New(fmt.Errorf("event bus shutdown timed out after %s", timeout)).
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}
	return EventBusStats{
		EventsReceived:  eb.stats.received.Load(),
		EventsProcessed: eb.stats.processed.Load(),
		EventsDropped:   eb.stats.dropped.Load(),
		ConsumerErrors:  eb.stats.errors.Load(),
	}
}

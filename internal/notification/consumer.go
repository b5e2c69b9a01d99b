package notification

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/observability/metrics"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Consumer sends notifications for a configured set of event kinds.
type Consumer struct {
	providers []Provider
	kinds     map[events.Kind]bool
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *metrics.NotificationMetrics
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMetrics records delivery metrics.
func WithMetrics(m *metrics.NotificationMetrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

// WithRateLimit overrides the default of 60 messages a minute with bursts of 10.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Consumer) { c.limiter = l }
}

// NewConsumer returns a consumer for kinds, or DefaultKinds when empty.
func NewConsumer(providers []Provider, kinds []events.Kind, timeout time.Duration, opts ...Option) *Consumer {
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Consumer{
		providers: providers,
		kinds:     make(map[events.Kind]bool, len(kinds)),
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 10),
	}
	for _, k := range kinds {
		c.kinds[k] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements events.EventConsumer.
func (c *Consumer) Name() string { return "notification" }

// ProcessEvent implements events.EventConsumer.
func (c *Consumer) ProcessEvent(event events.Event) error {
	if !c.kinds[event.Kind] {
		return nil
	}
	n := Render(event)
	if n == nil {
		return nil
	}
	if !c.limiter.Allow() {
		log.Warn("notification rate limit reached, dropping message",
			logger.String("camera", event.Camera),
			logger.String("kind", string(event.Kind)))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	var errs []error
	for _, p := range c.providers {
		if err := p.Send(ctx, n); err != nil {
			errs = append(errs, err)
			log.Warn("notification delivery failed",
				logger.String("provider", p.GetName()),
				logger.String("camera", event.Camera),
				logger.String("kind", string(event.Kind)),
				logger.Error(err))
		}
	}
	err := errors.Join(errs...)

	if c.metrics != nil {
		c.metrics.RecordDelivery(string(event.Kind), time.Since(start).Seconds(), err)
	}
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("camera", event.Camera).
			Context("kind", string(event.Kind)).
			Build()
	}
	return nil
}

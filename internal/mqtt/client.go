package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/observability/metrics"
	"github.com/reowatch/reowatch/internal/privacy"
)

// client implements the Client interface on top of paho.
type client struct {
	config  Config
	topics  Topics
	metrics *metrics.MQTTMetrics

	mu             sync.Mutex
	internalClient paho.Client

	// onConnect runs after every successful (re)connection
	onConnect func()
}

// NewClient creates a new MQTT client from settings. m may be nil.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) (Client, error) {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Topic = settings.MQTT.Topic
	cfg.Retain = settings.MQTT.Retain

	name := settings.Main.Name
	if name == "" {
		name = "reowatch"
	}
	// Brokers drop the older session when two clients share an ID
	cfg.ClientID = fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])

	return newClient(cfg, m)
}

func newClient(cfg Config, m *metrics.MQTTMetrics) (*client, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.NewStd("broker URL has no host")
		}
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", privacy.RedactURL(cfg.Broker)).
			Build()
	}
	return &client{
		config:  cfg,
		topics:  Topics{Prefix: cfg.Topic},
		metrics: m,
	}, nil
}

// SetOnConnect registers fn to run after every successful connection.
func (c *client) SetOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Connect resolves the broker host and establishes the connection. Paho
// reconnects on its own afterwards.
func (c *client) Connect(ctx context.Context) error {
	u, _ := url.Parse(c.config.Broker)
	host := u.Hostname()

	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Context("operation", "resolve_broker").
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(c.config.MaxReconnect)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetWill(c.topics.Status(), StatusOffline, 1, true)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		if c.metrics != nil {
			c.metrics.IncrementReconnectAttempts()
		}
		log.Debug("reconnecting to MQTT broker")
	})

	pc := paho.NewClient(opts)
	token := pc.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		pc.Disconnect(0)
		return errors.New(ctx.Err()).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("operation", "connect").
			Build()
	}
	if err := token.Error(); err != nil {
		c.incErrors()
		return errors.New(privacy.WrapError(err)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("operation", "connect").
			Build()
	}

	c.mu.Lock()
	c.internalClient = pc
	c.mu.Unlock()
	return nil
}

// Publish sends payload to topic at QoS 0.
func (c *client) Publish(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	pc := c.internalClient
	c.mu.Unlock()

	if pc == nil || !pc.IsConnected() {
		c.incErrors()
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("topic", topic).
			Build()
	}

	var timer *metrics.PublishTimer
	if c.metrics != nil {
		timer = c.metrics.StartPublishTimer()
	}

	token := pc.Publish(topic, 0, retain, payload)

	wait := time.NewTimer(c.config.PublishTimeout)
	defer wait.Stop()

	select {
	case <-token.Done():
	case <-wait.C:
		c.incErrors()
		return errors.Newf("publish timed out after %s", c.config.PublishTimeout).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		c.incErrors()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if timer != nil {
		timer.ObserveDuration()
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObserveMessageSize(float64(len(payload)))
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect publishes the offline status and closes the connection.
func (c *client) Disconnect() {
	c.mu.Lock()
	pc := c.internalClient
	c.internalClient = nil
	c.mu.Unlock()

	if pc == nil {
		return
	}
	if pc.IsConnected() {
		token := pc.Publish(c.topics.Status(), 1, true, StatusOffline)
		token.WaitTimeout(c.config.DisconnectTimeout)
	}
	pc.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) handleConnect(pc paho.Client) {
	log.Info("connected to MQTT broker",
		logger.String("broker", privacy.RedactURL(c.config.Broker)))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	pc.Publish(c.topics.Status(), 1, true, StatusOnline)

	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func (c *client) handleConnectionLost(_ paho.Client, err error) {
	log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.RedactURL(c.config.Broker)),
		logger.Error(privacy.WrapError(err)))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
	}
	c.incErrors()
}

func (c *client) incErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

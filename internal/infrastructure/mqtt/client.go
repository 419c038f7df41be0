package mqtt

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
)

// MessageHandler receives the payload of one message. A returned error is
// logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Logger is the logging surface of the client.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// route is a subscription kept for restoring after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Stats counts broker traffic since Connect.
type Stats struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
	Received      uint64 `json:"received"`
}

// Client is the watchdog's broker connection. It reconnects on its own and
// restores every subscription after a reconnect. Safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	connected atomic.Bool

	mu           sync.Mutex
	routes       map[string]route // topic filter -> route
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger

	published     atomic.Uint64
	publishErrors atomic.Uint64
	received      atomic.Uint64
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := dialOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("reconnecting to broker", "broker", brokerURL(cfg))
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, brokerURL(cfg), err)
	}

	// The connect handler runs asynchronously; report connected right away.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
		routes:   make(map[string]route),
		logger:   noopLogger{},
	}
}

// await waits for a paho token.
func await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return token.Error()
}

func (c *Client) connectionUp() {
	c.connected.Store(true)
	c.restoreRoutes()
	c.paho.Publish(Topics{}.Status(), c.qos, true, presencePayload(c.clientID, presenceOnline, ""))

	c.mu.Lock()
	callback := c.onConnect
	c.mu.Unlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.mu.Lock()
	callback := c.onDisconnect
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) restoreRoutes() {
	c.mu.Lock()
	routes := maps.Clone(c.routes)
	c.mu.Unlock()

	for _, topic := range slices.Sorted(maps.Keys(routes)) {
		r := routes[topic]
		if err := await(c.paho.Subscribe(topic, r.qos, c.deliver(r.handler)), ackTimeout); err != nil {
			c.log().Warn("restoring subscription failed", "topic", topic, "error", err)
		}
	}
}

// Close announces a graceful shutdown on the status topic and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		payload := presencePayload(c.clientID, presenceOffline, reasonShutdown)
		if err := await(c.paho.Publish(Topics{}.Status(), c.qos, true, payload), ackTimeout); err != nil {
			c.log().Warn("announcing shutdown failed", "error", err)
		}
	}
	c.paho.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker connection is down.
// It backs the API health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

// DefaultQoS is the configured QoS for watchdog traffic.
func (c *Client) DefaultQoS() byte {
	return c.qos
}

// Stats returns the traffic counters for the metrics endpoint.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	subs := len(c.routes)
	c.mu.Unlock()
	return Stats{
		Connected:     c.IsConnected(),
		Subscriptions: subs,
		Published:     c.published.Load(),
		PublishErrors: c.publishErrors.Load(),
		Received:      c.received.Load(),
	}
}

// SetOnConnect sets the callback run after every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets the callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// deliver adapts handler to paho, counting messages and containing panics.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("message handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("message handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}

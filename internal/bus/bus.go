package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/mqtt"
)

// DefaultTimeout bounds one request/response round trip.
const DefaultTimeout = 3 * time.Second

// eventQueueSize bounds the events waiting for their listeners.
const eventQueueSize = 256

// Transport is the MQTT surface the bus needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface for the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Bus.
type Options struct {
	QoS     byte
	Timeout time.Duration
}

type subscription struct {
	id        string
	topic     string
	listener  device.Listener
	device    string
	attribute string
}

// delivery is one decoded event and the listeners it goes to.
type delivery struct {
	ev        *device.Event
	listeners []*subscription
}

// Bus correlates device requests with replies and dispatches device events.
type Bus struct {
	transport Transport
	qos       byte
	timeout   time.Duration
	topics    mqtt.Topics
	logger    Logger

	mu      sync.Mutex
	started bool
	pending map[string]chan ResponseMessage

	subMu   sync.Mutex
	subs    map[string]*subscription
	byTopic map[string][]string

	// Listeners run on the dispatch goroutine in arrival order.
	events chan delivery
	quit   chan struct{}
	wg     sync.WaitGroup
}

var (
	_ device.Subscriber = (*Bus)(nil)
	_ device.Publisher  = (*Bus)(nil)
)

// New creates a Bus on top of transport.
func New(transport Transport, opts Options) *Bus {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Bus{
		transport: transport,
		qos:       opts.QoS,
		timeout:   opts.Timeout,
		logger:    noopLogger{},
		pending:   make(map[string]chan ResponseMessage),
		subs:      make(map[string]*subscription),
		byTopic:   make(map[string][]string),
		events:    make(chan delivery, eventQueueSize),
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to the reply topics and starts event dispatch.
func (b *Bus) Start() error {
	if err := b.transport.Subscribe(b.topics.AllResponses(), b.qos, b.handleResponse); err != nil {
		return fmt.Errorf("subscribing to responses: %w", err)
	}
	b.mu.Lock()
	b.started = true
	if b.quit == nil {
		quit := make(chan struct{})
		b.quit = quit
		b.wg.Go(func() { b.dispatch(quit) })
	}
	b.mu.Unlock()
	return nil
}

// Stop drops the reply subscription and every event subscription, and
// waits for the listener in progress to return.
func (b *Bus) Stop() error {
	b.mu.Lock()
	b.started = false
	quit := b.quit
	b.quit = nil
	b.mu.Unlock()

	if quit != nil {
		close(quit)
		b.wg.Wait()
	}

	b.subMu.Lock()
	topics := make([]string, 0, len(b.byTopic))
	for topic := range b.byTopic {
		topics = append(topics, topic)
	}
	clear(b.subs)
	clear(b.byTopic)
	b.subMu.Unlock()

	for _, topic := range topics {
		if err := b.transport.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribing device topic failed", "topic", topic, "error", err)
		}
	}
	return b.transport.Unsubscribe(b.topics.AllResponses())
}

// request sends req to dev and waits for its reply.
func (b *Bus) request(ctx context.Context, dev string, req RequestMessage) (any, error) {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil, ErrNotStarted
	}
	req.ID = uuid.NewString()
	req.ReplyTo = b.topics.Response(req.ID)
	req.Timestamp = time.Now().UTC()
	reply := make(chan ResponseMessage, 1)
	b.pending[req.ID] = reply
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := b.transport.Publish(b.topics.DeviceRequest(dev), payload, b.qos, false); err != nil {
		return nil, fmt.Errorf("sending %s request to %s: %w", req.Op, dev, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s%s after %s", ErrTimeout, dev, req.Op, target(req), b.timeout)
	case resp := <-reply:
		if !resp.OK {
			return nil, fmt.Errorf("%w: %s %s%s: %s", ErrRemote, dev, req.Op, target(req), resp.Error)
		}
		return resp.Value, nil
	}
}

func target(req RequestMessage) string {
	switch {
	case req.Attribute != "":
		return " " + req.Attribute
	case req.Command != "":
		return " " + req.Command
	default:
		return ""
	}
}

// handleResponse routes a reply to its waiting request.
func (b *Bus) handleResponse(topic string, payload []byte) error {
	id, ok := mqtt.ParseResponse(topic)
	if !ok {
		return fmt.Errorf("unexpected response topic %q", topic)
	}

	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response %s: %w", id, err)
	}
	if resp.ID == "" {
		resp.ID = id
	}

	b.mu.Lock()
	reply, waiting := b.pending[id]
	b.mu.Unlock()
	if !waiting {
		b.logger.Debug("late or unknown response dropped", "id", id)
		return nil
	}

	select {
	case reply <- resp:
	default:
	}
	return nil
}

// Subscribe registers listener for attribute events of dev.
func (b *Bus) Subscribe(_ context.Context, dev, attribute string, listener device.Listener) (string, error) {
	topic := b.topics.DeviceAttribute(dev, attribute)
	sub := &subscription{
		id:        uuid.NewString(),
		topic:     topic,
		listener:  listener,
		device:    dev,
		attribute: attribute,
	}

	b.subMu.Lock()
	first := len(b.byTopic[topic]) == 0
	b.subs[sub.id] = sub
	b.byTopic[topic] = append(b.byTopic[topic], sub.id)
	b.subMu.Unlock()

	if first {
		if err := b.transport.Subscribe(topic, b.qos, b.handleEvent); err != nil {
			b.removeSubscription(sub.id)
			return "", fmt.Errorf("subscribing to %s/%s: %w", dev, attribute, err)
		}
	}
	return sub.id, nil
}

// Unsubscribe removes a subscription; the topic is released with its last
// subscription.
func (b *Bus) Unsubscribe(_ context.Context, id string) error {
	topic, last, ok := b.removeSubscription(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}
	if last {
		if err := b.transport.Unsubscribe(topic); err != nil {
			return fmt.Errorf("unsubscribing %s: %w", topic, err)
		}
	}
	return nil
}

func (b *Bus) removeSubscription(id string) (topic string, last, ok bool) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return "", false, false
	}
	delete(b.subs, id)

	ids := b.byTopic[sub.topic]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(b.byTopic, sub.topic)
		return sub.topic, true, true
	}
	b.byTopic[sub.topic] = ids
	return sub.topic, false, true
}

// handleEvent decodes an attribute event and queues it for its listeners.
// A full queue drops the event; the next poll catches up.
func (b *Bus) handleEvent(topic string, payload []byte) error {
	b.subMu.Lock()
	ids := b.byTopic[topic]
	listeners := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.subs[id])
	}
	b.subMu.Unlock()

	if len(listeners) == 0 {
		return nil
	}

	dev, attr, ok := mqtt.ParseDeviceAttribute(topic)
	if !ok {
		return fmt.Errorf("unexpected event topic %q", topic)
	}

	ev := &device.Event{Device: dev, Attribute: attr, Timestamp: time.Now()}
	var msg AttributeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		ev.Err = fmt.Errorf("decoding event: %w", err)
	} else {
		ev.Value = msg.Value
		if !msg.Timestamp.IsZero() {
			ev.Timestamp = msg.Timestamp
		}
		if msg.Error != "" {
			ev.Err = fmt.Errorf("%w: %s", ErrRemote, msg.Error)
		}
	}

	select {
	case b.events <- delivery{ev: ev, listeners: listeners}:
	default:
		b.logger.Warn("event queue full, event dropped", "device", dev, "attribute", attr)
	}
	return nil
}

func (b *Bus) dispatch(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case d := <-b.events:
			for _, sub := range d.listeners {
				sub.listener(d.ev)
			}
		}
	}
}

// PublishChange publishes a watchdog attribute as a retained message.
func (b *Bus) PublishChange(c device.Change) error {
	payload, err := json.Marshal(PublishedAttribute{
		Name:      c.Name,
		Value:     c.Value,
		Quality:   string(c.Quality),
		Timestamp: c.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", c.Name, err)
	}
	return b.transport.Publish(b.topics.Attribute(c.Name), payload, b.qos, true)
}

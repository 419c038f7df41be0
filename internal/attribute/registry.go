package attribute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// WriteFunc applies a client write to a writable attribute.
type WriteFunc func(ctx context.Context, value any) error

// Binding declares one published attribute.
type Binding struct {
	Name        string
	Description string

	// Device and Attribute identify per-device attributes; both are empty
	// for watchdog-level attributes.
	Device    string
	Attribute string

	// Write makes the attribute writable.
	Write WriteFunc

	// Initial is the value before the first change.
	Initial any
}

// Value is the published state of an attribute.
type Value struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Device      string         `json:"device,omitempty"`
	Attribute   string         `json:"attribute,omitempty"`
	Writable    bool           `json:"writable"`
	Value       any            `json:"value"`
	Timestamp   time.Time      `json:"timestamp"`
	Quality     device.Quality `json:"quality"`
}

// Sink receives every published value.
type Sink interface {
	Deliver(v Value) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Value) error

// Deliver calls f(v).
func (f SinkFunc) Deliver(v Value) error { return f(v) }

// Logger defines the logging interface for the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type entry struct {
	binding Binding
	value   Value
}

type namedSink struct {
	name string
	sink Sink
}

// Registry maps attribute names (case-insensitive) to their bindings.
type Registry struct {
	logger Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	sinks   []namedSink
}

var _ device.Publisher = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  noopLogger{},
		entries: make(map[string]*entry),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a binding. Its initial value has INVALID quality until the
// first change is published.
func (r *Registry) Register(b Binding) error {
	if b.Name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownAttribute)
	}
	key := strings.ToLower(b.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, b.Name)
	}
	r.entries[key] = &entry{
		binding: b,
		value: Value{
			Name:        b.Name,
			Description: b.Description,
			Device:      b.Device,
			Attribute:   b.Attribute,
			Writable:    b.Write != nil,
			Value:       b.Initial,
			Quality:     device.QualityInvalid,
		},
	}
	r.order = append(r.order, key)
	return nil
}

// AddSink adds a sink. Sinks should be added before publishing starts.
func (r *Registry) AddSink(name string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, namedSink{name: name, sink: sink})
}

// PublishChange caches the change and delivers it to every sink.
func (r *Registry) PublishChange(c device.Change) error {
	key := strings.ToLower(c.Name)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, c.Name)
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	if c.Quality == "" {
		c.Quality = device.QualityValid
	}
	e.value.Value = c.Value
	e.value.Timestamp = c.Timestamp
	e.value.Quality = c.Quality
	v := e.value
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.sink.Deliver(v); err != nil {
			r.logger.Warn("attribute sink failed", "sink", s.name, "attribute", v.Name, "error", err)
		}
	}
	r.logger.Debug("attribute published", "attribute", v.Name, "quality", v.Quality)
	return nil
}

// Read returns the current value of an attribute.
func (r *Registry) Read(name string) (Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(name)]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return e.value, nil
}

// List returns every attribute in registration order.
func (r *Registry) List() []Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Value, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key].value)
	}
	return out
}

// Write applies a client write through the attribute's write handler.
func (r *Registry) Write(ctx context.Context, name string, value any) error {
	r.mu.RLock()
	e, ok := r.entries[strings.ToLower(name)]
	var write WriteFunc
	if ok {
		write = e.binding.Write
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	if write == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	return write(ctx, value)
}

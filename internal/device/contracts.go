package device

import "context"

// Handle talks to one device on the control-system bus.
// A timeout or transport failure is reported as an error.
type Handle interface {
	// QueryState reads the device's primary state attribute.
	QueryState(ctx context.Context) (State, error)

	// Reinit issues the soft reinitialise command.
	Reinit(ctx context.Context) error

	// StatusText reads the device's human-readable status.
	StatusText(ctx context.Context) (string, error)

	ReadAttribute(ctx context.Context, name string) (any, error)
	WriteAttribute(ctx context.Context, name string, value any) error
}

// Listener receives asynchronous events. It may be called concurrently with
// the monitor's own poll loop.
type Listener func(*Event)

// Subscriber manages asynchronous event subscriptions.
type Subscriber interface {
	// Subscribe registers listener for changes of device/attribute and
	// returns an id for Unsubscribe.
	Subscribe(ctx context.Context, device, attribute string, listener Listener) (string, error)
	Unsubscribe(ctx context.Context, id string) error
}

// FleetManager restarts the device-server instance that hosts a device.
// It is optional; hang recovery needs it.
type FleetManager interface {
	// ResolveInstance returns the instance hosting device.
	ResolveInstance(ctx context.Context, device string) (string, bool)
	StopInstance(ctx context.Context, id string) bool
	StartInstance(ctx context.Context, id string) bool
}

// Notifier delivers operator notifications. Delivery is best effort;
// callers log and swallow the error.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Publisher exposes a value change on the watchdog's attribute surface.
type Publisher interface {
	PublishChange(change Change) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Change) error

// PublishChange calls f(change).
func (f PublisherFunc) PublishChange(change Change) error { return f(change) }

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, subject, body string) error

// Notify calls f(ctx, subject, body).
func (f NotifierFunc) Notify(ctx context.Context, subject, body string) error {
	return f(ctx, subject, body)
}

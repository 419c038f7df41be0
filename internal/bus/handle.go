package bus

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// DeviceHandle is a device.Handle that talks to one device over the bus.
type DeviceHandle struct {
	bus       *Bus
	device    string
	stateAttr string
}

var _ device.Handle = (*DeviceHandle)(nil)

// Handle returns a handle for dev whose primary state attribute is stateAttr.
func (b *Bus) Handle(dev, stateAttr string) *DeviceHandle {
	if stateAttr == "" {
		stateAttr = "State"
	}
	return &DeviceHandle{bus: b, device: dev, stateAttr: stateAttr}
}

// QueryState reads the primary state attribute.
func (h *DeviceHandle) QueryState(ctx context.Context) (device.State, error) {
	v, err := h.ReadAttribute(ctx, h.stateAttr)
	if err != nil {
		return "", err
	}
	state, err := device.ParseState(fmt.Sprint(v))
	if err != nil {
		return "", fmt.Errorf("state of %s: %w", h.device, err)
	}
	return state, nil
}

// Reinit sends the Init command.
func (h *DeviceHandle) Reinit(ctx context.Context) error {
	_, err := h.bus.request(ctx, h.device, RequestMessage{Op: OpCommand, Command: CommandInit})
	return err
}

// StatusText reads the Status attribute.
func (h *DeviceHandle) StatusText(ctx context.Context) (string, error) {
	v, err := h.ReadAttribute(ctx, AttributeStatus)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return fmt.Sprint(v), nil
}

// ReadAttribute reads one attribute.
func (h *DeviceHandle) ReadAttribute(ctx context.Context, name string) (any, error) {
	return h.bus.request(ctx, h.device, RequestMessage{Op: OpRead, Attribute: name})
}

// WriteAttribute writes one attribute.
func (h *DeviceHandle) WriteAttribute(ctx context.Context, name string, value any) error {
	_, err := h.bus.request(ctx, h.device, RequestMessage{Op: OpWrite, Attribute: name, Value: value})
	return err
}

package monitor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// HandleEvent processes an asynchronous attribute event. Value-less events
// are ignored. It never panics.
func (m *Monitor) HandleEvent(ev *device.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic handling device event", "device", m.name, "panic", r)
		}
	}()

	if !ev.HasValue() {
		return
	}
	if !strings.EqualFold(ev.Device, m.name) {
		m.logger.Warn("event for another device dropped", "device", m.name, "event_device", ev.Device)
		return
	}

	if strings.EqualFold(ev.Attribute, m.stateAttr) {
		m.handleStateEvent(ev)
		return
	}

	ex, ok := m.extras[strings.ToLower(ev.Attribute)]
	if !ok {
		m.logger.Debug("event for unrecognised attribute dropped", "device", m.name, "attribute", ev.Attribute)
		return
	}

	if m.cacheExtra(ex, ev) {
		m.publish(device.NewChange(device.AttributeName(m.name, ex.name), ev.Value))
	}
}

func (m *Monitor) handleStateEvent(ev *device.Event) {
	raw := fmt.Sprint(ev.Value)
	state, err := device.ParseState(raw)
	if err != nil {
		m.logger.Warn("invalid state event", "device", m.name, "value", raw, "error", err)
		return
	}

	m.mu.Lock()
	changed := m.transitionLocked(state)
	m.mu.Unlock()

	m.syncFleet()
	if changed {
		m.publishState(state)
	}
}

func (m *Monitor) cacheExtra(ex *extraValue, ev *device.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := !reflect.DeepEqual(ex.value, ev.Value)
	ex.value = ev.Value
	return changed
}

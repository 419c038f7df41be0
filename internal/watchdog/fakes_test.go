package watchdog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

var errNoAnswer = errors.New("no answer")

// fakeHandle answers with a settable state and records writes.
type fakeHandle struct {
	mu     sync.Mutex
	state  device.State
	err    error
	writes map[string]any
}

func (h *fakeHandle) QueryState(context.Context) (device.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.err
}

func (h *fakeHandle) Reinit(context.Context) error { return nil }

func (h *fakeHandle) StatusText(context.Context) (string, error) { return "ok", nil }

func (h *fakeHandle) ReadAttribute(_ context.Context, name string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes[name], nil
}

func (h *fakeHandle) WriteAttribute(_ context.Context, name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes[name] = value
	return nil
}

func (h *fakeHandle) set(state device.State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state, h.err = state, err
}

func (h *fakeHandle) written(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.writes[name]
	return v, ok
}

// fakeBus hands out one fakeHandle per device.
type fakeBus struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	subs    map[string]string
}

func newFakeBus() *fakeBus {
	return &fakeBus{handles: make(map[string]*fakeHandle), subs: make(map[string]string)}
}

func (b *fakeBus) handle(name string) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(name)
	h, ok := b.handles[key]
	if !ok {
		h = &fakeHandle{state: device.StateRunning, writes: make(map[string]any)}
		b.handles[key] = h
	}
	return h
}

func (b *fakeBus) factory(name, _ string) device.Handle { return b.handle(name) }

func (b *fakeBus) Subscribe(_ context.Context, dev, attr string, _ device.Listener) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.subs[id] = dev + "/" + attr
	return id, nil
}

func (b *fakeBus) Unsubscribe(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	return nil
}

// memWatchList is an in-memory WatchList.
type memWatchList struct {
	mu       sync.Mutex
	extra    []device.WatchedDevice
	settings map[string]string
	loadErr  error
}

func newMemWatchList() *memWatchList {
	return &memWatchList{settings: make(map[string]string)}
}

func (w *memWatchList) Load(_ context.Context, lines []string) ([]device.WatchedDevice, error) {
	names, _ := device.ParseNameList(lines)
	out := make([]device.WatchedDevice, 0, len(names)+len(w.extra))
	for _, n := range names {
		out = append(out, device.WatchedDevice{Name: n, Enabled: true})
	}
	return append(out, w.extra...), w.loadErr
}

func (w *memWatchList) Remember(_ context.Context, key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings[key] = value
	return nil
}

func (w *memWatchList) Recall(_ context.Context, key string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.settings[key]
	return v, ok
}

func (w *memWatchList) setting(key string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings[key]
}

// fakeRecorder counts telemetry calls.
type fakeRecorder struct {
	mu         sync.Mutex
	fleet      [][3]int
	attributes map[string]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{attributes: make(map[string]float64)}
}

func (r *fakeRecorder) WriteDeviceState(string, string) {}

func (r *fakeRecorder) WriteRecovery(string, string, string, time.Duration) {}

func (r *fakeRecorder) WriteOverlap(string, int, time.Duration) {}

func (r *fakeRecorder) WriteAttribute(dev, attr string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attributes[dev+"/"+attr] = value
}

func (r *fakeRecorder) WriteFleetCounts(running, fault, hang int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fleet = append(r.fleet, [3]int{running, fault, hang})
}

func (r *fakeRecorder) lastFleet() ([3]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fleet) == 0 {
		return [3]int{}, false
	}
	return r.fleet[len(r.fleet)-1], true
}

func (r *fakeRecorder) attribute(key string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.attributes[key]
	return v, ok
}

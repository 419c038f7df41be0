package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
)

var errTimeout = errors.New("request timed out")

type answer struct {
	state device.State
	err   error
}

type attrWrite struct {
	attr  string
	value any
}

type fakeHandle struct {
	mu        sync.Mutex
	answers   []answer
	fallback  answer
	queries   int
	reinits   int
	reinitErr error
	status    string
	statusErr error
	writes    []attrWrite
	onQuery   func()
}

func (h *fakeHandle) QueryState(context.Context) (device.State, error) {
	h.mu.Lock()
	h.queries++
	a := h.fallback
	if len(h.answers) > 0 {
		a = h.answers[0]
		h.answers = h.answers[1:]
	}
	onQuery := h.onQuery
	h.mu.Unlock()

	if onQuery != nil {
		onQuery()
	}
	return a.state, a.err
}

func (h *fakeHandle) Reinit(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reinits++
	return h.reinitErr
}

func (h *fakeHandle) StatusText(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.statusErr
}

func (h *fakeHandle) ReadAttribute(context.Context, string) (any, error) {
	return nil, errors.New("not implemented")
}

func (h *fakeHandle) WriteAttribute(_ context.Context, name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, attrWrite{attr: name, value: value})
	return nil
}

func (h *fakeHandle) script(answers ...answer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answers = append(h.answers, answers...)
}

func (h *fakeHandle) queryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queries
}

func ok(s device.State) answer { return answer{state: s} }

func silent() answer { return answer{err: errTimeout} }

type fakeSubscriber struct {
	mu        sync.Mutex
	next      int
	active    map[string]string // id -> attribute
	listeners map[string]device.Listener
	failAttr  string
	unsubs    int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		active:    make(map[string]string),
		listeners: make(map[string]device.Listener),
	}
}

func (s *fakeSubscriber) Subscribe(_ context.Context, dev, attr string, l device.Listener) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAttr != "" && s.failAttr == attr {
		return "", errTimeout
	}
	s.next++
	id := fmt.Sprintf("sub-%d", s.next)
	s.active[id] = dev + "/" + attr
	s.listeners[id] = l
	return id, nil
}

func (s *fakeSubscriber) Unsubscribe(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs++
	delete(s.active, id)
	delete(s.listeners, id)
	return nil
}

func (s *fakeSubscriber) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

type fakeFleetManager struct {
	mu         sync.Mutex
	instances  map[string]string
	stopOK     []bool // per attempt; missing entries mean false
	startOK    bool
	stopCalls  int
	startCalls int
}

func (f *fakeFleetManager) ResolveInstance(_ context.Context, dev string) (string, bool) {
	id, ok := f.instances[dev]
	return id, ok
}

func (f *fakeFleetManager) StopInstance(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopCalls <= len(f.stopOK) {
		return f.stopOK[f.stopCalls-1]
	}
	return false
}

func (f *fakeFleetManager) StartInstance(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startOK
}

type notification struct {
	subject string
	body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{subject: subject, body: body})
	return nil
}

func (n *recordingNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.subject)
	}
	return out
}

func (n *recordingNotifier) count(subject string) int {
	c := 0
	for _, s := range n.subjects() {
		if s == subject {
			c++
		}
	}
	return c
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []device.Change
}

func (p *recordingPublisher) PublishChange(c device.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) named(name string) []device.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []device.Change
	for _, c := range p.changes {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeRecorder struct {
	mu         sync.Mutex
	recoveries []string
	overlaps   []int
}

func (r *fakeRecorder) WriteDeviceState(string, string) {}

func (r *fakeRecorder) WriteRecovery(_, kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoveries = append(r.recoveries, kind+":"+outcome)
}

func (r *fakeRecorder) WriteOverlap(_ string, overlaps int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlaps = append(r.overlaps, overlaps)
}

// env bundles a monitor with its fakes.
type env struct {
	m        *Monitor
	handle   *fakeHandle
	subs     *fakeSubscriber
	agg      *fleet.Aggregator
	fm       *fakeFleetManager
	notifier *recordingNotifier
	pub      *recordingPublisher
	rec      *fakeRecorder
	sleeps   []time.Duration
}

const testDevice = "sys/tg_test/1"

func newEnv(cfg Config) *env {
	e := &env{
		handle:   &fakeHandle{fallback: ok(device.StateRunning)},
		subs:     newFakeSubscriber(),
		fm:       &fakeFleetManager{instances: map[string]string{testDevice: "TestServer/1"}, startOK: true},
		notifier: &recordingNotifier{},
		pub:      &recordingPublisher{},
		rec:      &fakeRecorder{},
	}
	e.agg = fleet.New(nil, nil)

	if cfg.Name == "" {
		cfg.Name = testDevice
	}
	m, err := New(cfg, Deps{
		Handle:       e.handle,
		Subscriber:   e.subs,
		Fleet:        e.agg,
		FleetManager: e.fm,
		Notifier:     e.notifier,
		Publisher:    e.pub,
		Recorder:     e.rec,
	})
	if err != nil {
		panic(err)
	}
	m.sleep = func(ctx context.Context, d time.Duration) bool {
		e.sleeps = append(e.sleeps, d)
		return ctx.Err() == nil
	}
	e.m = m
	return e
}

// sets returns which fleet sets hold the test device.
func (e *env) sets() []fleet.Set {
	var in []fleet.Set
	for _, s := range fleet.Sets {
		if e.agg.Contains(s, e.m.Name()) {
			in = append(in, s)
		}
	}
	return in
}

func stateEvent(dev string, value any) *device.Event {
	return &device.Event{Device: dev, Attribute: "State", Value: value, Timestamp: time.Now()}
}

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
)

// Defaults applied by New.
const (
	DefaultStateAttribute = "State"
	DefaultPollPeriod     = 180 * time.Second
	DefaultOverlapsAlert  = 10
	DefaultStopAttempts   = 2
	DefaultStopWait       = 3 * time.Second
)

// Membership is the part of the fleet aggregator a monitor drives.
type Membership interface {
	AppendTo(set fleet.Set, name string) bool
	RemoveFrom(set fleet.Set, name string) bool
	Contains(set fleet.Set, name string) bool
}

// Recorder receives monitoring telemetry. *influxdb.Client satisfies it.
type Recorder interface {
	WriteDeviceState(device, state string)
	WriteRecovery(device, kind, outcome string, elapsed time.Duration)
	WriteOverlap(device string, overlaps int, elapsed time.Duration)
}

// Logger defines the logging interface for monitors.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures one monitor.
type Config struct {
	// Name is the device name on the bus.
	Name string

	// StateAttribute is the device's primary state attribute (case-insensitive).
	StateAttribute string

	// ExtraAttributes are mirrored and republished on change.
	ExtraAttributes []string

	FaultRecovery bool
	HangRecovery  bool

	PollPeriod    time.Duration
	OverlapsAlert int

	// StartDelay postpones the first poll.
	StartDelay time.Duration

	// StopAttempts and StopWait bound the stop phase of hang recovery.
	StopAttempts int
	StopWait     time.Duration
}

// Deps are the collaborators of a monitor. Handle and Fleet are required.
type Deps struct {
	Handle       device.Handle
	Subscriber   device.Subscriber
	Fleet        Membership
	FleetManager device.FleetManager
	Notifier     device.Notifier
	Publisher    device.Publisher
	Recorder     Recorder
	Logger       Logger
}

// extraValue is the last-seen value of a mirrored attribute.
type extraValue struct {
	name  string
	value any
}

// Monitor watches one device.
type Monitor struct {
	name      string
	stateAttr string
	cfg       Config

	handle     device.Handle
	subscriber device.Subscriber
	fleet      Membership
	fm         device.FleetManager
	notifier   device.Notifier
	publisher  device.Publisher
	recorder   Recorder
	logger     Logger

	faultCount atomic.Int64
	hangCount  atomic.Int64

	mu            sync.Mutex
	state         device.State
	faultRecovery bool
	hangRecovery  bool
	stateSub      string
	extraSubs     map[string]string      // lower-cased name -> subscription id
	extras        map[string]*extraValue // keyed by lower-cased name

	// member is the fleet set the device belongs in, decided under mu and
	// applied to the fleet by syncFleet without it.
	member  fleet.Set
	syncing bool

	extraOrder    []string
	overlaps      int
	lastCheck     time.Time

	// Replaced in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a monitor. It fails when a required dependency is missing or
// when hang recovery is requested without a fleet manager.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if err := device.ValidateName(cfg.Name); err != nil {
		return nil, fmt.Errorf("monitor %q: %w", cfg.Name, err)
	}
	if deps.Handle == nil {
		return nil, fmt.Errorf("%w: handle for %s", ErrMissingDependency, cfg.Name)
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("%w: fleet for %s", ErrMissingDependency, cfg.Name)
	}
	if cfg.HangRecovery && deps.FleetManager == nil {
		return nil, fmt.Errorf("%w: %s", ErrHangRecoveryUnavailable, cfg.Name)
	}

	if cfg.StateAttribute == "" {
		cfg.StateAttribute = DefaultStateAttribute
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = DefaultPollPeriod
	}
	if cfg.OverlapsAlert <= 0 {
		cfg.OverlapsAlert = DefaultOverlapsAlert
	}
	if cfg.StopAttempts <= 0 {
		cfg.StopAttempts = DefaultStopAttempts
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = DefaultStopWait
	}

	m := &Monitor{
		name:          cfg.Name,
		stateAttr:     cfg.StateAttribute,
		cfg:           cfg,
		handle:        deps.Handle,
		subscriber:    deps.Subscriber,
		fleet:         deps.Fleet,
		fm:            deps.FleetManager,
		notifier:      deps.Notifier,
		publisher:     deps.Publisher,
		recorder:      deps.Recorder,
		logger:        deps.Logger,
		state:         device.StateUnknown,
		member:        noSet,
		extraSubs:     make(map[string]string),
		faultRecovery: cfg.FaultRecovery,
		hangRecovery:  cfg.HangRecovery,
		extras:        make(map[string]*extraValue, len(cfg.ExtraAttributes)),
		now:           time.Now,
		sleep:         sleepCtx,
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	for _, attr := range cfg.ExtraAttributes {
		key := strings.ToLower(attr)
		if _, dup := m.extras[key]; dup || strings.EqualFold(attr, cfg.StateAttribute) {
			continue
		}
		m.extras[key] = &extraValue{name: attr}
		m.extraOrder = append(m.extraOrder, key)
	}

	return m, nil
}

// Name returns the device name.
func (m *Monitor) Name() string { return m.name }

// State returns the cached device state.
func (m *Monitor) State() device.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PollPeriod returns the configured poll period.
func (m *Monitor) PollPeriod() time.Duration { return m.cfg.PollPeriod }

// FaultRecovery reports whether fault recovery is enabled.
func (m *Monitor) FaultRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faultRecovery
}

// SetFaultRecovery enables or disables fault recovery.
func (m *Monitor) SetFaultRecovery(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faultRecovery = enabled
}

// HangRecovery reports whether hang recovery is enabled.
func (m *Monitor) HangRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hangRecovery
}

// SetHangRecovery enables or disables hang recovery. Enabling it without a
// fleet manager fails and keeps the previous setting.
func (m *Monitor) SetHangRecovery(enabled bool) error {
	if enabled && m.fm == nil {
		m.logger.Error("cannot enable hang recovery", "device", m.name, "error", ErrHangRecoveryUnavailable)
		return fmt.Errorf("%w: %s", ErrHangRecoveryUnavailable, m.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangRecovery = enabled
	return nil
}

// FaultRecoveries returns the fault counter of the ongoing episode.
func (m *Monitor) FaultRecoveries() int { return int(m.faultCount.Load()) }

// HangRecoveries returns the hang counter of the ongoing episode.
func (m *Monitor) HangRecoveries() int { return int(m.hangCount.Load()) }

// ExtraAttributes returns the mirrored attribute names in configuration order.
func (m *Monitor) ExtraAttributes() []string {
	out := make([]string, 0, len(m.extraOrder))
	for _, key := range m.extraOrder {
		out = append(out, m.extras[key].name)
	}
	return out
}

// HasExtraAttribute reports whether attr is mirrored (case-insensitive).
func (m *Monitor) HasExtraAttribute(attr string) bool {
	_, ok := m.extras[strings.ToLower(attr)]
	return ok
}

// ExtraAttribute returns the last-seen value of a mirrored attribute.
func (m *Monitor) ExtraAttribute(attr string) (any, error) {
	ex, ok := m.extras[strings.ToLower(attr)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownAttribute, m.name, attr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return ex.value, nil
}

// WriteAttribute writes a mirrored attribute on the device.
func (m *Monitor) WriteAttribute(ctx context.Context, attr string, value any) error {
	ex, ok := m.extras[strings.ToLower(attr)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownAttribute, m.name, attr)
	}
	if err := m.handle.WriteAttribute(ctx, ex.name, value); err != nil {
		return fmt.Errorf("writing %s/%s: %w", m.name, ex.name, err)
	}
	return nil
}

// Snapshot is a point-in-time view of a monitor.
type Snapshot struct {
	Name            string         `json:"name"`
	State           device.State   `json:"state"`
	FaultRecovery   bool           `json:"fault_recovery"`
	HangRecovery    bool           `json:"hang_recovery"`
	FaultRecoveries int            `json:"fault_recoveries"`
	HangRecoveries  int            `json:"hang_recoveries"`
	Overlaps        int            `json:"overlaps"`
	Subscribed      bool           `json:"subscribed"`
	LastCheck       *time.Time     `json:"last_check,omitempty"`
	PollPeriod      string         `json:"poll_period"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Snapshot returns the monitor's current view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Name:            m.name,
		State:           m.state,
		FaultRecovery:   m.faultRecovery,
		HangRecovery:    m.hangRecovery,
		FaultRecoveries: int(m.faultCount.Load()),
		HangRecoveries:  int(m.hangCount.Load()),
		Overlaps:        m.overlaps,
		Subscribed:      m.stateSub != "",
		PollPeriod:      m.cfg.PollPeriod.String(),
	}
	if !m.lastCheck.IsZero() {
		t := m.lastCheck
		s.LastCheck = &t
	}
	if len(m.extraOrder) > 0 {
		s.Extra = make(map[string]any, len(m.extraOrder))
		for _, key := range m.extraOrder {
			ex := m.extras[key]
			s.Extra[ex.name] = ex.value
		}
	}
	return s
}

// subscribe registers the state and extra attribute listeners that are not
// already held. It reports whether the state subscription is held.
func (m *Monitor) subscribe(ctx context.Context) bool {
	if m.subscriber == nil {
		return true
	}

	m.mu.Lock()
	haveState := m.stateSub != ""
	var missing []string
	for _, key := range m.extraOrder {
		if _, held := m.extraSubs[key]; !held {
			missing = append(missing, key)
		}
	}
	m.mu.Unlock()

	if !haveState {
		id, err := m.subscriber.Subscribe(ctx, m.name, m.stateAttr, m.HandleEvent)
		if err != nil {
			m.logger.Warn("event subscription failed", "device", m.name, "attribute", m.stateAttr, "error", err)
		} else {
			m.mu.Lock()
			m.stateSub = id
			m.mu.Unlock()
			haveState = true
		}
	}

	for _, key := range missing {
		attr := m.extras[key].name
		id, err := m.subscriber.Subscribe(ctx, m.name, attr, m.HandleEvent)
		if err != nil {
			m.logger.Warn("event subscription failed", "device", m.name, "attribute", attr, "error", err)
			continue
		}
		m.mu.Lock()
		m.extraSubs[key] = id
		m.mu.Unlock()
	}
	return haveState
}

// unsubscribe drops every event subscription.
func (m *Monitor) unsubscribe(ctx context.Context) {
	m.mu.Lock()
	var ids []string
	if m.stateSub != "" {
		ids = append(ids, m.stateSub)
	}
	for _, key := range m.extraOrder {
		if id, held := m.extraSubs[key]; held {
			ids = append(ids, id)
		}
	}
	m.stateSub = ""
	clear(m.extraSubs)
	m.mu.Unlock()

	if m.subscriber == nil {
		return
	}
	for _, id := range ids {
		if err := m.subscriber.Unsubscribe(ctx, id); err != nil {
			m.logger.Warn("event unsubscription failed", "device", m.name, "id", id, "error", err)
		}
	}
}

// publishState republishes the device state attribute.
func (m *Monitor) publishState(state device.State) {
	change := device.NewChange(device.AttributeName(m.name, DefaultStateAttribute), state.String())
	if state.IsUnknown() {
		change.Quality = device.QualityInvalid
	}
	m.publish(change)
	if m.recorder != nil {
		m.recorder.WriteDeviceState(m.name, state.String())
	}
}

func (m *Monitor) publish(change device.Change) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishChange(change); err != nil {
		m.logger.Warn("publishing attribute failed", "device", m.name, "attribute", change.Name, "error", err)
	}
}

func (m *Monitor) notify(ctx context.Context, subject, body string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, subject, body); err != nil {
		m.logger.Warn("notification failed", "device", m.name, "subject", subject, "error", err)
	}
}

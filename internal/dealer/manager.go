package dealer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// memoryKey is the settings key of the selected policy.
const memoryKey = "dealer.policy"

// Settings are the parameters the Manager builds dealers from.
type Settings struct {
	Attributes  []string
	States      []device.State
	Equidistant Equidistant
	MinMax      MinMax
}

// Memory persists the selected policy. *device.WatchList satisfies it.
type Memory interface {
	Remember(ctx context.Context, key, value string) error
	Recall(ctx context.Context, key string) (string, bool)
}

// Manager owns the active dealer and runs distribution passes.
type Manager struct {
	settings   Settings
	candidates []Candidate
	memory     Memory
	logger     Logger

	mu     sync.RWMutex
	active *Dealer

	trigger chan struct{}
}

// NewManager creates a Manager with no active dealer. memory may be nil.
func NewManager(settings Settings, candidates []Candidate, memory Memory) *Manager {
	return &Manager{
		settings:   settings,
		candidates: candidates,
		memory:     memory,
		logger:     noopLogger{},
		trigger:    make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the manager and the dealers it builds.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Options lists the selectable policies.
func (m *Manager) Options() []string {
	return []string{PolicyEquidistant, PolicyMinMax}
}

// Active returns the active policy name, or "" when none is selected.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.Policy().Name()
}

// Select rebuilds the dealer for the named policy (case-insensitive) and
// memorises the choice. On error the previous dealer stays active.
// Passes already running finish with the previous dealer.
func (m *Manager) Select(ctx context.Context, name string) error {
	policy, err := m.policy(name)
	if err != nil {
		m.logger.Error("dealer selection rejected", "policy", name, "error", err)
		return err
	}

	d, err := New(policy, m.settings.Attributes, m.settings.States, m.candidates)
	if err != nil {
		m.logger.Error("dealer selection rejected", "policy", name, "error", err)
		return err
	}
	d.SetLogger(m.logger)

	m.mu.Lock()
	m.active = d
	m.mu.Unlock()
	m.logger.Info("dealer selected", "policy", policy.Name())

	if m.memory != nil {
		if err := m.memory.Remember(ctx, memoryKey, policy.Name()); err != nil {
			m.logger.Warn("memorising dealer selection failed", "error", err)
		}
	}
	m.Trigger()
	return nil
}

// Restore selects the memorised policy, or fallback when nothing was
// memorised. An empty choice leaves the dealer disabled.
func (m *Manager) Restore(ctx context.Context, fallback string) error {
	name := fallback
	if m.memory != nil {
		if v, ok := m.memory.Recall(ctx, memoryKey); ok && v != "" {
			name = v
		}
	}
	if name == "" {
		return nil
	}
	return m.Select(ctx, name)
}

// Distribute runs one pass with the active dealer. Without one it does nothing.
func (m *Manager) Distribute(ctx context.Context) Result {
	m.mu.RLock()
	d := m.active
	m.mu.RUnlock()

	if d == nil {
		return Result{}
	}
	return d.Distribute(ctx)
}

// Trigger requests a distribution pass from Run. Requests made while a
// pass is pending coalesce.
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Run performs a distribution pass for every Trigger until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.trigger:
			m.Distribute(ctx)
		}
	}
}

func (m *Manager) policy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case strings.ToLower(PolicyEquidistant):
		return m.settings.Equidistant, nil
	case strings.ToLower(PolicyMinMax):
		return m.settings.MinMax, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

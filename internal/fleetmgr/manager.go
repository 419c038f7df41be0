package fleetmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/process"
)

// Supervisor is the part of process.Manager the fleet manager needs.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Stats() process.Stats
}

// Logger defines the logging interface for the fleet manager.
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

type instance struct {
	name    string
	managed bool
	sup     Supervisor
}

// Manager maps devices to device-server instances and restarts them.
type Manager struct {
	logger Logger

	order     []string
	instances map[string]*instance
	owners    map[string]string // lower-cased device -> instance

	mu     sync.Mutex
	ctx    context.Context //nolint:containedctx // lifetime of started processes
	cancel context.CancelFunc
}

var _ device.FleetManager = (*Manager)(nil)

// newSupervisor builds the supervisor for one instance; tests replace it.
var newSupervisor = func(cfg process.Config) Supervisor {
	return process.NewManager(cfg)
}

// New builds a Manager from configuration.
func New(cfg config.FleetManagerConfig) (*Manager, error) {
	m := &Manager{
		logger:    noopLogger{},
		instances: make(map[string]*instance, len(cfg.Instances)),
		owners:    make(map[string]string),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, ic := range cfg.Instances {
		if _, exists := m.instances[ic.Name]; exists {
			m.cancel()
			return nil, fmt.Errorf("instance %q configured twice", ic.Name)
		}
		for _, dev := range ic.Devices {
			key := strings.ToLower(strings.TrimSpace(dev))
			if owner, taken := m.owners[key]; taken {
				m.cancel()
				return nil, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateDevice, key, owner, ic.Name)
			}
			m.owners[key] = ic.Name
		}

		m.instances[ic.Name] = &instance{
			name:    ic.Name,
			managed: ic.Managed,
			sup: newSupervisor(process.Config{
				Name:             ic.Name,
				Binary:           ic.Binary,
				Args:             ic.Args,
				RestartOnFailure: ic.RestartOnFailure,
				GracefulTimeout:  ic.GracefulTimeout,
			}),
		}
		m.order = append(m.order, ic.Name)
	}

	return m, nil
}

// SetLogger sets the logger for the manager and its process supervisors.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
	for _, inst := range m.instances {
		if pm, ok := inst.sup.(*process.Manager); ok {
			pm.SetLogger(logger)
		}
	}
}

// ResolveInstance returns the instance hosting device.
func (m *Manager) ResolveInstance(_ context.Context, dev string) (string, bool) {
	id, ok := m.owners[strings.ToLower(dev)]
	return id, ok
}

// StopInstance stops the instance's process and reports success.
func (m *Manager) StopInstance(ctx context.Context, id string) bool {
	inst, ok := m.instances[id]
	if !ok {
		m.logger.Warn("stop of unknown instance", "instance", id)
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	if err := inst.sup.Stop(); err != nil {
		m.logger.Error("stopping instance failed", "instance", id, "error", err)
		return false
	}
	m.logger.Info("instance stopped", "instance", id)
	return true
}

// StartInstance starts the instance's process and reports success.
// An instance that is already running counts as started.
func (m *Manager) StartInstance(ctx context.Context, id string) bool {
	inst, ok := m.instances[id]
	if !ok {
		m.logger.Warn("start of unknown instance", "instance", id)
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	err := inst.sup.Start(m.lifetime())
	switch {
	case err == nil:
		m.logger.Info("instance started", "instance", id)
		return true
	case errors.Is(err, process.ErrAlreadyRunning):
		return true
	default:
		m.logger.Error("starting instance failed", "instance", id, "error", err)
		return false
	}
}

// StartAll starts every managed instance. Failures are collected, and the
// remaining instances are still started.
func (m *Manager) StartAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.order {
		inst := m.instances[name]
		if !inst.managed {
			continue
		}
		if !m.StartInstance(ctx, name) {
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrStartFailed, name, inst.sup.Stats().LastError))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every running instance and ends the processes' lifetime.
func (m *Manager) StopAll() {
	for _, name := range m.order {
		inst := m.instances[name]
		if !inst.sup.IsRunning() {
			continue
		}
		if err := inst.sup.Stop(); err != nil {
			m.logger.Error("stopping instance failed", "instance", name, "error", err)
		}
	}

	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
}

// Instances returns the statistics of every configured instance in
// configuration order.
func (m *Manager) Instances() []process.Stats {
	out := make([]process.Stats, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.instances[name].sup.Stats())
	}
	return out
}

func (m *Manager) lifetime() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

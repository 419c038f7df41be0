package fleetmgr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/process"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	cfg      process.Config
	running  bool
	starts   int
	stops    int
	startErr error
	stopErr  error
	startCtx context.Context //nolint:containedctx // recorded for assertions
}

func (f *fakeSupervisor) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.startCtx = ctx
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return process.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeSupervisor) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeSupervisor) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSupervisor) Stats() process.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := process.Stats{Name: f.cfg.Name, Status: process.StatusStopped}
	if f.running {
		st.Status = process.StatusRunning
	}
	if f.startErr != nil {
		st.LastError = f.startErr.Error()
	}
	return st
}

// withFakes replaces the supervisor factory for the duration of the test.
func withFakes(t *testing.T) map[string]*fakeSupervisor {
	t.Helper()
	fakes := make(map[string]*fakeSupervisor)
	orig := newSupervisor
	newSupervisor = func(cfg process.Config) Supervisor {
		f := &fakeSupervisor{cfg: cfg}
		fakes[cfg.Name] = f
		return f
	}
	t.Cleanup(func() { newSupervisor = orig })
	return fakes
}

func testConfig() config.FleetManagerConfig {
	return config.FleetManagerConfig{
		Enabled: true,
		Instances: []config.InstanceConfig{
			{Name: "ds-a", Binary: "/bin/ds", Devices: []string{"Sys/A/1", "sys/a/2"}, Managed: true},
			{Name: "ds-b", Binary: "/bin/ds", Devices: []string{"sys/b/1"}},
		},
	}
}

func TestNew_DuplicateDevice(t *testing.T) {
	withFakes(t)
	cfg := testConfig()
	cfg.Instances[1].Devices = append(cfg.Instances[1].Devices, "SYS/A/1")

	_, err := New(cfg)
	require.ErrorIs(t, err, ErrDuplicateDevice)
}

func TestResolveInstance(t *testing.T) {
	withFakes(t)
	m, err := New(testConfig())
	require.NoError(t, err)

	tests := []struct {
		device string
		want   string
		ok     bool
	}{
		{"sys/a/1", "ds-a", true},
		{"SYS/A/2", "ds-a", true},
		{"sys/b/1", "ds-b", true},
		{"sys/c/1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			got, ok := m.ResolveInstance(t.Context(), tt.device)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStopStartInstance(t *testing.T) {
	fakes := withFakes(t)
	m, err := New(testConfig())
	require.NoError(t, err)

	ctx := t.Context()
	assert.True(t, m.StartInstance(ctx, "ds-b"))
	assert.True(t, fakes["ds-b"].IsRunning())

	// Already running counts as started.
	assert.True(t, m.StartInstance(ctx, "ds-b"))

	assert.True(t, m.StopInstance(ctx, "ds-b"))
	assert.False(t, fakes["ds-b"].IsRunning())

	assert.False(t, m.StopInstance(ctx, "nope"))
	assert.False(t, m.StartInstance(ctx, "nope"))
}

func TestStopInstance_Failure(t *testing.T) {
	fakes := withFakes(t)
	m, err := New(testConfig())
	require.NoError(t, err)

	fakes["ds-a"].stopErr = errors.New("stuck")
	assert.False(t, m.StopInstance(t.Context(), "ds-a"))
}

func TestStartInstance_OutlivesCallerContext(t *testing.T) {
	fakes := withFakes(t)
	m, err := New(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.True(t, m.StartInstance(ctx, "ds-a"))
	cancel()

	startCtx := fakes["ds-a"].startCtx
	require.NotNil(t, startCtx)
	assert.NoError(t, startCtx.Err(), "process lifetime must not follow the caller's context")

	m.StopAll()
	assert.Error(t, startCtx.Err())
}

func TestStartAll_OnlyManaged(t *testing.T) {
	fakes := withFakes(t)
	m, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, m.StartAll(t.Context()))
	assert.True(t, fakes["ds-a"].IsRunning())
	assert.False(t, fakes["ds-b"].IsRunning())

	stats := m.Instances()
	require.Len(t, stats, 2)
	assert.Equal(t, "ds-a", stats[0].Name)
	assert.Equal(t, process.StatusRunning, stats[0].Status)

	m.StopAll()
	assert.False(t, fakes["ds-a"].IsRunning())
	assert.Equal(t, 1, fakes["ds-a"].stops)
	assert.Equal(t, 0, fakes["ds-b"].stops)
}

func TestStartAll_CollectsErrors(t *testing.T) {
	fakes := withFakes(t)
	cfg := testConfig()
	cfg.Instances[1].Managed = true
	m, err := New(cfg)
	require.NoError(t, err)

	fakes["ds-a"].startErr = errors.New("exec format error")
	err = m.StartAll(t.Context())
	require.ErrorIs(t, err, ErrStartFailed)
	assert.Contains(t, err.Error(), "ds-a")
	assert.True(t, fakes["ds-b"].IsRunning())
}

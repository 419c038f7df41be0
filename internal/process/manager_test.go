package process

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "ds-1",
		Binary: "/usr/bin/test",
		Args:   []string{"--flag"},
	})

	if m.Name() != "ds-1" {
		t.Errorf("Name() = %q, want %q", m.Name(), "ds-1")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 2*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
}

func TestNewManager_CustomConfig(t *testing.T) {
	m := NewManager(Config{
		Name:               "custom",
		Binary:             "/opt/bin/daemon",
		RestartDelay:       10 * time.Second,
		MaxRestartDelay:    10 * time.Minute,
		StableThreshold:    5 * time.Minute,
		GracefulTimeout:    30 * time.Second,
		MaxRestartAttempts: 20,
	})

	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 10*time.Second)
	}
	if m.config.MaxRestartDelay != 10*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 10*time.Minute)
	}
	if m.config.MaxRestartAttempts != 20 {
		t.Errorf("MaxRestartAttempts = %d, want 20", m.config.MaxRestartAttempts)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})

	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.Uptime() != 0 {
		t.Errorf("Uptime() = %v, want 0", m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
	stats := m.Stats()
	if stats.Name != "idle" || stats.Status != StatusStopped || stats.RestartCount != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped manager error: %v", err)
	}
}

func TestManager_StartWithoutBinary(t *testing.T) {
	m := NewManager(Config{Name: "nobin"})
	err := m.Start(t.Context())
	if !errors.Is(err, ErrNoBinary) {
		t.Errorf("Start() error = %v, want ErrNoBinary", err)
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "invalid",
		Binary: "/nonexistent/binary/path",
	})

	if err := m.Start(t.Context()); err == nil {
		t.Fatal("Start() with invalid binary should fail")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil, want error")
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var stopErr atomic.Value
	stopped := make(chan struct{})
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnStop: func(err error) {
			if err != nil {
				stopErr.Store(err)
			}
			close(stopped)
		},
	})

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 while running")
	}

	if err := m.Start(t.Context()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q, want %q", m.Status(), StatusStopped)
	}

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("OnStop was not called")
	}
	if v := stopErr.Load(); v != nil {
		t.Errorf("OnStop error = %v, want nil for requested stop", v)
	}
}

func TestManager_RestartAfterStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "again",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	for range 2 {
		if err := m.Start(t.Context()); err != nil {
			t.Fatalf("Start() error: %v", err)
		}
		if err := m.Stop(); err != nil {
			t.Fatalf("Stop() error: %v", err)
		}
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_RestartOnFailure(t *testing.T) {
	var restarts atomic.Int32
	m := NewManager(Config{
		Name:               "flaky",
		Binary:             "/bin/false",
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnRestart: func(int) {
			restarts.Add(1)
		},
	})

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if restarts.Load() >= 2 && m.Status() == StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := restarts.Load(); got != 2 {
		t.Errorf("restarts = %d, want 2", got)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failing exits")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestManager_ContextCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	m := NewManager(Config{
		Name:   "ctx",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
	})

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	deadline := time.Now().Add(3 * time.Second)
	for m.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.IsRunning() {
		t.Error("process still running after context cancel")
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "backoff",
		Binary:          "/bin/true",
		RestartDelay:    time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := m.calculateBackoffDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestManager_OnStartCallback(t *testing.T) {
	var started atomic.Bool
	m := NewManager(Config{
		Name:   "callback-test",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
		OnStart: func() {
			started.Store(true)
		},
		GracefulTimeout: 2 * time.Second,
	})

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop() //nolint:errcheck // test cleanup

	if !started.Load() {
		t.Error("OnStart callback was not called")
	}
}

package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-watchdog/internal/attribute"
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/logging"
)

const (
	dev1 = "sys/tg_test/1"
	dev2 = "sys/tg_test/2"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "wd-test"},
		Watchdog: config.WatchdogConfig{
			DevicesList:     []string{dev1 + ", " + dev2},
			ExtraAttributes: []string{"Position", "Mirror"},
			StateAttribute:  "State",
			TryFaultRecover: true,
			PollPeriod:      20 * time.Millisecond,
			OverlapsAlert:   10,
		},
		Dealer: config.DealerConfig{
			Attributes: []string{"Position", "Mirror"},
			States:     []string{"running"},
			MinMax:     config.MinMaxConfig{Min: 0, Max: 100},
			Equidistant: config.EquidistantConfig{
				Offset: 10,
				Step:   5,
			},
		},
		FleetManager: config.FleetManagerConfig{StopAttempts: 2, StopWait: time.Millisecond},
	}
}

type harness struct {
	bus      *fakeBus
	watch    *memWatchList
	recorder *fakeRecorder
	deps     Deps
}

func newHarness() *harness {
	h := &harness{
		bus:      newFakeBus(),
		watch:    newMemWatchList(),
		recorder: newFakeRecorder(),
	}
	h.deps = Deps{
		Handles:    h.bus.factory,
		Subscriber: h.bus,
		WatchList:  h.watch,
		Recorder:   h.recorder,
		Logger:     logging.Discard(),
	}
	return h
}

// run starts svc and returns a stop function that waits for Run to return.
func run(t *testing.T, svc *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}
	}
}

func value(t *testing.T, svc *Service, name string) any {
	t.Helper()
	v, err := svc.Registry().Read(name)
	require.NoError(t, err)
	return v.Value
}

func TestNew_MissingDependencies(t *testing.T) {
	h := newHarness()
	cfg := testConfig()

	deps := h.deps
	deps.Handles = nil
	_, err := New(t.Context(), cfg, deps)
	require.ErrorIs(t, err, ErrMissingDependency)

	deps = h.deps
	deps.Subscriber = nil
	_, err = New(t.Context(), cfg, deps)
	require.ErrorIs(t, err, ErrMissingDependency)

	deps = h.deps
	deps.WatchList = nil
	_, err = New(t.Context(), cfg, deps)
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestNew_RegistersAttributes(t *testing.T) {
	h := newHarness()
	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, v := range svc.Registry().List() {
		names = append(names, v.Name)
	}
	for _, want := range []string{
		AttrState, AttrStatus,
		"RunningDevices", "RunningDevicesList",
		"FaultDevices", "FaultDevicesList",
		"HangDevices", "HangDevicesList",
		"sys_tg_test_1_State", "sys_tg_test_1_Position", "sys_tg_test_1_Mirror",
		"sys_tg_test_2_State",
		AttrDealers, AttrDealer,
	} {
		assert.Contains(t, names, want)
	}

	assert.Equal(t, StateInit, value(t, svc, AttrState))
	assert.Equal(t, []string{"Equidistant", "MinMax"}, value(t, svc, AttrDealers))

	dealerAttr, err := svc.Registry().Read(AttrDealer)
	require.NoError(t, err)
	assert.True(t, dealerAttr.Writable)

	require.Len(t, svc.Devices(), 2)
	assert.Equal(t, dev1, svc.Devices()[0].Name)
	_, ok := svc.Device("SYS/TG_TEST/2")
	assert.True(t, ok)
	_, ok = svc.Device("sys/none/1")
	assert.False(t, ok)
}

func TestNew_StoredDevicesAndExtras(t *testing.T) {
	h := newHarness()
	h.watch.extra = []device.WatchedDevice{{Name: "sys/stored/1", Enabled: true, ExtraAttributes: []string{"Current"}}}
	cfg := testConfig()
	cfg.Watchdog.DeviceExtraAttributes = map[string][]string{"SYS/TG_TEST/1": {"Voltage"}}

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)

	m, ok := svc.Monitor(dev1)
	require.True(t, ok)
	assert.Equal(t, []string{"Position", "Mirror", "Voltage"}, m.ExtraAttributes())

	stored, ok := svc.Monitor("sys/stored/1")
	require.True(t, ok)
	assert.True(t, stored.HasExtraAttribute("current"))
}

func TestRun_TracksFleetAndState(t *testing.T) {
	h := newHarness()
	h.bus.handle(dev2).set(device.StateFault, nil)

	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)
	stop := run(t, svc)

	require.Eventually(t, func() bool {
		return value(t, svc, "RunningDevices") == 1 && value(t, svc, "FaultDevices") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOn, svc.State())
	assert.Equal(t, StateOn, value(t, svc, AttrState))
	assert.Equal(t, "RUNNING", value(t, svc, "sys_tg_test_1_State"))

	h.bus.handle(dev2).set("", errNoAnswer)
	require.Eventually(t, func() bool {
		return value(t, svc, "HangDevices") == 1 && value(t, svc, "FaultDevices") == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		counts, ok := h.recorder.lastFleet()
		return ok && counts == [3]int{1, 0, 1}
	}, 2*time.Second, 5*time.Millisecond)

	v, ok := h.recorder.attribute("wd-test/RunningDevices")
	assert.True(t, ok)
	assert.InDelta(t, 1, v, 0)

	stop()
}

func TestRun_DealerDistributesOnRunningChange(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Dealer.Policy = "minmax"

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)
	stop := run(t, svc)
	defer stop()

	require.Eventually(t, func() bool {
		p1, ok1 := h.bus.handle(dev1).written("Position")
		p2, ok2 := h.bus.handle(dev2).written("Position")
		m1, _ := h.bus.handle(dev1).written("Mirror")
		m2, _ := h.bus.handle(dev2).written("Mirror")
		return ok1 && ok2 && p1 == 0 && p2 == 100 && m1 == 100 && m2 == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "MinMax", value(t, svc, AttrDealer))
	assert.Equal(t, "MinMax", h.watch.setting("dealer.policy"))
}

func TestRun_RestoresMemorisedDealer(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.watch.Remember(t.Context(), "dealer.policy", "Equidistant"))
	cfg := testConfig()
	cfg.Dealer.Policy = "MinMax"

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)
	stop := run(t, svc)
	defer stop()

	require.Eventually(t, func() bool {
		return value(t, svc, AttrDealer) == "Equidistant"
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		p2, ok := h.bus.handle(dev2).written("Position")
		return ok && p2 == 15
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_UnmirroredDealerIsDisabled(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Dealer.Policy = "MinMax"
	cfg.Dealer.Attributes = []string{"Position", "NotMirrored"}

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)
	stop := run(t, svc)
	defer stop()

	require.Eventually(t, func() bool {
		return svc.State() == StateOn
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", value(t, svc, AttrDealer))
	assert.Contains(t, value(t, svc, AttrStatus), "dealer disabled")
}

func TestWriteDealer(t *testing.T) {
	h := newHarness()
	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)

	err = svc.Registry().Write(t.Context(), AttrDealer, 42.0)
	require.ErrorIs(t, err, attribute.ErrInvalidValue)

	err = svc.Registry().Write(t.Context(), AttrDealer, "RoundRobin")
	require.ErrorIs(t, err, attribute.ErrInvalidValue)
	assert.Equal(t, "", svc.Dealers().Active())

	require.NoError(t, svc.Registry().Write(t.Context(), AttrDealer, "equidistant"))
	assert.Equal(t, "Equidistant", svc.Dealers().Active())
	assert.Equal(t, "Equidistant", value(t, svc, AttrDealer))
	assert.Equal(t, "Equidistant", h.watch.setting("dealer.policy"))

	err = svc.Registry().Write(t.Context(), AttrDealers, "x")
	require.ErrorIs(t, err, attribute.ErrReadOnly)
}

func TestRun_MonitorFailureStartsInFault(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Watchdog.TryHangRecover = true // no fleet manager in deps

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)
	assert.Empty(t, svc.Devices())

	stop := run(t, svc)
	defer stop()

	require.Eventually(t, func() bool {
		return svc.State() == StateFault
	}, time.Second, 5*time.Millisecond)
	status, ok := value(t, svc, AttrStatus).(string)
	require.True(t, ok)
	assert.Contains(t, status, "FAULT")
	assert.Contains(t, status, "cannot monitor "+dev1)
}

func TestNew_StoreFailureKeepsConfiguredDevices(t *testing.T) {
	h := newHarness()
	h.watch.loadErr = errors.New("disk I/O error")

	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)
	assert.Len(t, svc.Devices(), 2)
	assert.Contains(t, value(t, svc, AttrStatus), "watch list store unavailable")
}

func TestFail(t *testing.T) {
	h := newHarness()
	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)

	svc.Fail("bus connection lost")
	assert.Equal(t, StateFault, value(t, svc, AttrState))
	assert.Contains(t, value(t, svc, AttrStatus), "bus connection lost")
}

func TestRun_KeepsFaultRaisedBeforeRun(t *testing.T) {
	h := newHarness()
	svc, err := New(t.Context(), testConfig(), h.deps)
	require.NoError(t, err)

	svc.Fail("telemetry unavailable: connection refused")
	stop := run(t, svc)
	require.Eventually(t, func() bool {
		return value(t, svc, "RunningDevices") == 2
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, StateFault, svc.State())
	assert.Equal(t, StateFault, value(t, svc, AttrState))
	assert.Contains(t, value(t, svc, AttrStatus), "telemetry unavailable")
}

func TestNew_NoDevicesNotePublished(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Watchdog.DevicesList = nil

	svc, err := New(t.Context(), cfg, h.deps)
	require.NoError(t, err)
	assert.Equal(t, StateInit, value(t, svc, AttrState))
	assert.Contains(t, value(t, svc, AttrStatus), "no devices to monitor")
}

func TestStaggerDelay(t *testing.T) {
	tests := []struct {
		poll time.Duration
		n, i int
		want time.Duration
	}{
		{180 * time.Second, 3, 0, 0},
		{180 * time.Second, 3, 1, 60 * time.Second},
		{180 * time.Second, 3, 2, 120 * time.Second},
		{180 * time.Second, 0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, staggerDelay(tt.poll, tt.n, tt.i))
	}
}

func TestReportPeriod(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, fleet.DefaultReportPeriod, reportPeriod(cfg))
	cfg.Watchdog.ReportPeriodHours = 1.5
	assert.Equal(t, 90*time.Minute, reportPeriod(cfg))
}

func TestStatusBoard(t *testing.T) {
	b := newStatusBoard()
	assert.Equal(t, "The watchdog is in INIT state.", b.text())

	for i := range maxImportant + 5 {
		b.note(string(rune('a' + i)))
	}
	b.set(StateOn)
	text := b.text()
	assert.Contains(t, text, "ON state.")
	assert.NotContains(t, text, " - a\n")
	assert.Contains(t, text, " - y")
}

package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
)

// SubjectOverlaps is the subject of the overlap escalation notification.
const SubjectOverlaps = "Recheck overlaps"

// unsubscribeTimeout bounds the unsubscription done on shutdown.
const unsubscribeTimeout = 3 * time.Second

// Run polls the device until ctx is done. It subscribes to the device's
// events first; a failed state subscription puts the device in the hang set
// until a poll answers.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"device", m.name,
		"poll_period", m.cfg.PollPeriod,
		"start_delay", m.cfg.StartDelay,
	)
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
		defer cancel()
		m.unsubscribe(uctx)
		m.logger.Info("monitor stopped", "device", m.name)
	}()

	if !m.subscribe(ctx) {
		m.mu.Lock()
		m.member = fleet.Hang
		m.mu.Unlock()
		m.syncFleet()
	}

	if m.cfg.StartDelay > 0 && !m.sleep(ctx, m.cfg.StartDelay) {
		return nil
	}

	for ctx.Err() == nil {
		start := m.now()
		m.Check(ctx)
		if !m.waitNextCheck(ctx, m.now().Sub(start)) {
			break
		}
	}
	return nil
}

// Check runs one poll cycle: query the state with one retry, then take the
// hang path or the response path.
func (m *Monitor) Check(ctx context.Context) {
	state, err := m.queryState(ctx)

	m.mu.Lock()
	m.lastCheck = m.now()
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.noResponse(ctx)
		return
	}
	m.response(ctx, state)
}

// queryState makes two attempts and returns the first answer.
func (m *Monitor) queryState(ctx context.Context) (device.State, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		state, err := m.handle.QueryState(ctx)
		if err == nil {
			m.logger.Debug("device answered", "device", m.name, "state", state, "attempt", attempt)
			return state, nil
		}
		lastErr = err
		m.logger.Warn("device did not answer state request", "device", m.name, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("querying %s: %w", m.name, lastErr)
}

// noResponse is the hang path of a poll cycle.
func (m *Monitor) noResponse(ctx context.Context) {
	m.mu.Lock()
	dropSubs := false
	if m.member != fleet.Hang {
		if m.member == fleet.Fault {
			m.faultCount.Store(0)
		}
		m.member = fleet.Hang
		dropSubs = true
	}
	runHang := m.state.IsUnknown() && m.hangRecovery
	changed := !m.state.IsUnknown()
	m.state = device.StateUnknown
	m.mu.Unlock()

	m.syncFleet()
	if dropSubs {
		m.unsubscribe(ctx)
	}
	if changed {
		m.publishState(device.StateUnknown)
	}
	if runHang {
		m.recoverHang(ctx)
	}
}

// response is the answered path of a poll cycle.
func (m *Monitor) response(ctx context.Context, state device.State) {
	m.mu.Lock()
	if m.state.IsUnknown() {
		if m.member == fleet.Hang {
			m.member = noSet
		}
		m.hangCount.Store(0)
	}
	resubscribe := m.stateSub == ""
	runFault := state.IsFault() && m.faultRecovery
	changed := m.transitionLocked(state)
	m.mu.Unlock()

	m.syncFleet()
	if changed {
		m.publishState(state)
	}
	if resubscribe && m.subscriber != nil {
		m.subscribe(ctx)
	}
	if runFault {
		m.recoverFault(ctx)
	}
}

// waitNextCheck sleeps for the rest of the poll period. A cycle that used
// the whole period is an overlap: no sleep, except at every OverlapsAlert-th
// consecutive overlap, which notifies and sleeps one full period.
// It reports false when ctx is done.
func (m *Monitor) waitNextCheck(ctx context.Context, elapsed time.Duration) bool {
	period := m.cfg.PollPeriod
	if elapsed < period {
		m.mu.Lock()
		m.overlaps = 0
		m.mu.Unlock()
		return m.sleep(ctx, period-elapsed)
	}

	m.mu.Lock()
	m.overlaps++
	overlaps := m.overlaps
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.WriteOverlap(m.name, overlaps, elapsed)
	}

	if overlaps%m.cfg.OverlapsAlert != 0 {
		m.logger.Warn("poll cycle overran the poll period, not sleeping",
			"device", m.name, "elapsed", elapsed, "overlaps", overlaps)
		return ctx.Err() == nil
	}

	m.logger.Warn("poll cycle overran the poll period repeatedly, forcing a full sleep",
		"device", m.name, "elapsed", elapsed, "overlaps", overlaps)
	m.notify(ctx, SubjectOverlaps, fmt.Sprintf(
		"There have been %d consecutive overlaps in the poll loop of %s.\nThe last cycle took %s for a period of %s.",
		overlaps, m.name, elapsed.Round(time.Millisecond), period))
	return m.sleep(ctx, period)
}

// sleepCtx waits for d or until ctx is done. It reports false when ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

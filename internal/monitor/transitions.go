package monitor

import (
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
)

// noSet is the membership of a device outside every fleet set.
const noSet fleet.Set = -1

// transitionLocked applies a newly observed state to the device's fleet
// membership and caches it. It reports whether the state changed.
// Callers hold m.mu and call syncFleet after releasing it.
func (m *Monitor) transitionLocked(next device.State) bool {
	prev := m.state
	if next == prev {
		return false
	}

	inHang := m.member == fleet.Hang

	switch {
	case next.IsRunning():
		if m.member == fleet.Fault {
			m.faultCount.Store(0)
		}
		m.member = fleet.Running
	case next.IsFault():
		m.member = fleet.Fault
	default:
		if m.member == fleet.Running || m.member == fleet.Fault {
			m.member = noSet
		}
		if prev.IsFault() {
			m.faultCount.Store(0)
		}
	}

	if inHang && next != "" {
		if m.member == fleet.Hang {
			m.member = noSet
		}
		m.hangCount.Store(0)
	}

	m.logger.Debug("device state changed", "device", m.name, "from", prev, "to", next)
	m.state = next
	return true
}

// syncFleet applies the membership decided under m.mu to the fleet. The
// fleet publishes and notifies, so it runs without m.mu. One goroutine
// syncs at a time; a caller that finds a sync running leaves its decision
// to that goroutine, which loops until the membership stops moving.
func (m *Monitor) syncFleet() {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return
	}
	m.syncing = true
	for {
		want := m.member
		m.mu.Unlock()

		m.applyMembership(want)

		m.mu.Lock()
		if m.member == want {
			break
		}
	}
	m.syncing = false
	m.mu.Unlock()
}

func (m *Monitor) applyMembership(want fleet.Set) {
	if want != noSet {
		if !m.fleet.Contains(want, m.name) {
			m.fleet.AppendTo(want, m.name)
		}
		return
	}
	for _, set := range fleet.Sets {
		if m.fleet.Contains(set, m.name) {
			m.fleet.RemoveFrom(set, m.name)
		}
	}
}

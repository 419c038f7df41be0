package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Recovery kinds.
const (
	KindFault = "fault"
	KindHang  = "hang"
)

// Subjects of the recovery notifications.
const (
	SubjectFaultRecovery = "Recovery from Fault"
	SubjectHangRecovery  = "Recovery from Hang"
)

// Outcome describes one recovery attempt.
type Outcome struct {
	Kind     string
	Device   string
	Instance string

	// StatusText is the device status read before a fault recovery.
	StatusText string

	// Success is true when the reinit (fault) or the instance start (hang)
	// succeeded.
	Success bool

	// Err joins every failure met during the attempt.
	Err error

	// Notified is true for the first attempt of an episode.
	Notified bool
	Elapsed  time.Duration
}

func (o Outcome) result() string {
	if o.Success {
		return "success"
	}
	return "failure"
}

// recoverFault reads the status text and issues a soft reinit. Failures are
// logged and recorded in the outcome, never returned.
func (m *Monitor) recoverFault(ctx context.Context) Outcome {
	start := m.now()
	out := Outcome{Kind: KindFault, Device: m.name}
	var errs []error

	status, err := m.handle.StatusText(ctx)
	if err != nil {
		m.logger.Warn("reading status before fault recovery failed", "device", m.name, "error", err)
		errs = append(errs, fmt.Errorf("status: %w", err))
	}
	out.StatusText = status

	if err := m.handle.Reinit(ctx); err != nil {
		m.logger.Error("fault recovery reinit failed", "device", m.name, "error", err)
		errs = append(errs, fmt.Errorf("reinit: %w", err))
	} else {
		m.logger.Info("fault recovery reinit completed", "device", m.name)
		out.Success = true
	}
	out.Err = errors.Join(errs...)

	if m.faultCount.Add(1) == 1 {
		out.Notified = true
		m.notify(ctx, SubjectFaultRecovery, faultBody(out))
	}

	out.Elapsed = m.now().Sub(start)
	m.record(out)
	return out
}

// recoverHang restarts the device's instance: up to StopAttempts stops,
// StopWait apart, then a start regardless of the stop result. Cancelling
// ctx during the stop phase skips the start.
func (m *Monitor) recoverHang(ctx context.Context) Outcome {
	start := m.now()
	out := Outcome{Kind: KindHang, Device: m.name}

	instance, ok := m.fm.ResolveInstance(ctx, m.name)
	if !ok {
		m.logger.Error("hang recovery failed", "device", m.name, "error", ErrInstanceUnresolved)
		out.Err = ErrInstanceUnresolved
	} else {
		out.Instance = instance
		stopped := false
		for attempt := 1; attempt <= m.cfg.StopAttempts; attempt++ {
			if m.fm.StopInstance(ctx, instance) {
				stopped = true
				break
			}
			m.logger.Warn("instance stop failed", "device", m.name, "instance", instance, "attempt", attempt)
			if attempt < m.cfg.StopAttempts && !m.sleep(ctx, m.cfg.StopWait) {
				break
			}
		}

		if err := ctx.Err(); err != nil {
			m.logger.Warn("hang recovery interrupted before start", "device", m.name, "instance", instance, "stopped", stopped)
			out.Err = fmt.Errorf("hang recovery of %s interrupted: %w", instance, err)
			out.Elapsed = m.now().Sub(start)
			m.record(out)
			return out
		}

		m.logger.Info("starting instance", "device", m.name, "instance", instance, "stopped", stopped)
		out.Success = m.fm.StartInstance(ctx, instance)
		if !out.Success {
			out.Err = fmt.Errorf("instance %s did not start", instance)
			m.logger.Error("hang recovery could not start instance", "device", m.name, "instance", instance)
		}
	}

	if m.hangCount.Add(1) == 1 {
		out.Notified = true
		m.notify(ctx, SubjectHangRecovery, hangBody(out))
	}

	out.Elapsed = m.now().Sub(start)
	m.record(out)
	return out
}

func (m *Monitor) record(out Outcome) {
	if m.recorder != nil {
		m.recorder.WriteRecovery(out.Device, out.Kind, out.result(), out.Elapsed)
	}
}

func faultBody(out Outcome) string {
	var b strings.Builder
	b.WriteString("Applied the recovery from Fault procedure.\n\n")
	fmt.Fprintf(&b, "Affected device: %s\n", out.Device)
	if out.StatusText != "" {
		fmt.Fprintf(&b, "Status before recovery: %s\n", out.StatusText)
	}
	if out.Err != nil {
		fmt.Fprintf(&b, "Errors during the procedure:\n%v\n", out.Err)
	}
	return b.String()
}

func hangBody(out Outcome) string {
	var b strings.Builder
	b.WriteString("Applied the recovery from Hang procedure.\n\n")
	fmt.Fprintf(&b, "Affected device: %s", out.Device)
	if out.Instance != "" {
		fmt.Fprintf(&b, " (instance: %s)", out.Instance)
	}
	b.WriteString("\n")
	if out.Err != nil {
		fmt.Fprintf(&b, "Errors during the procedure:\n%v\n", out.Err)
	}
	return b.String()
}

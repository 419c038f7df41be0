package fleet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// DefaultReportPeriod is the digest period when none is configured.
const DefaultReportPeriod = 8 * time.Hour

// Subjects of the reporter's notifications.
const (
	SubjectDigest        = "Periodic report"
	SubjectDigestFailure = "Periodic report failure"
)

// Reporter periodically sends a digest of the changes log.
type Reporter struct {
	log      *ChangesLog
	notifier device.Notifier
	period   time.Duration
	logger   Logger

	mu         sync.Mutex
	lastReport time.Time
	reset      chan struct{}

	// build is replaced in tests.
	build func(since time.Time, entries []Entry) string
}

// NewReporter creates a Reporter for log. A non-positive period falls back
// to DefaultReportPeriod.
func NewReporter(log *ChangesLog, notifier device.Notifier, period time.Duration) *Reporter {
	if period <= 0 {
		period = DefaultReportPeriod
	}
	return &Reporter{
		log:        log,
		notifier:   notifier,
		period:     period,
		logger:     noopLogger{},
		lastReport: time.Now(),
		reset:      make(chan struct{}, 1),
		build:      buildDigest,
	}
}

// SetLogger sets the logger for the reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.logger = logger
}

// Period returns the report period.
func (r *Reporter) Period() time.Duration {
	return r.period
}

// Run sends a digest every period until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("digest reporter started", "period", r.period)
	timer := time.NewTimer(r.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("digest reporter stopped")
			return nil
		case <-r.reset:
		case <-timer.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.Error("periodic digest failed", "error", err)
			}
		}
		timer.Reset(r.untilNext())
	}
}

// Flush sends the pending changes as one digest now and resets the report
// clock. It reports whether a digest was sent; an empty log sends nothing.
// Without a notifier the pending changes stay in the log.
// A failed send is followed by one best-effort failure notification.
func (r *Reporter) Flush(ctx context.Context) (bool, error) {
	if r.notifier == nil {
		return false, nil
	}

	r.mu.Lock()
	since := r.lastReport
	r.lastReport = time.Now()
	r.mu.Unlock()

	select {
	case r.reset <- struct{}{}:
	default:
	}

	entries := r.log.Drain()
	if len(entries) == 0 {
		return false, nil
	}

	body, err := r.safeBuild(since, entries)
	if err != nil {
		return false, err
	}

	if err := r.notifier.Notify(ctx, SubjectDigest, body); err != nil {
		r.logger.Error("sending digest failed", "entries", len(entries), "error", err)
		failure := fmt.Sprintf("The periodic report with %d changes could not be sent:\n%v", len(entries), err)
		if ferr := r.notifier.Notify(ctx, SubjectDigestFailure, failure); ferr != nil {
			r.logger.Error("reporting digest failure failed", "error", ferr)
		}
		return false, fmt.Errorf("sending digest: %w", err)
	}

	r.logger.Info("digest sent", "entries", len(entries))
	return true, nil
}

func (r *Reporter) untilNext() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := time.Until(r.lastReport.Add(r.period))
	if d < 0 {
		return 0
	}
	return d
}

func (r *Reporter) safeBuild(since time.Time, entries []Entry) (body string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("digest generation panicked", "panic", p)
			err = fmt.Errorf("%w: %v", ErrDigestPanic, p)
		}
	}()
	return r.build(since, entries), nil
}

// buildDigest renders entries grouped by set, in arrival order.
func buildDigest(since time.Time, entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fleet changes since %s (%d):\n", since.Format(stampLayout), len(entries))

	for _, set := range Sets {
		first := true
		for _, e := range entries {
			if e.Set != set {
				continue
			}
			if first {
				fmt.Fprintf(&b, "\n%s\n", set.CountAttribute())
				first = false
			}
			sign := "+"
			if e.Action == ActionRemove {
				sign = "-"
			}
			fmt.Fprintf(&b, "  %s  %s%s  count=%d  [%s]\n",
				e.Stamp, sign, e.Device, e.Count, strings.Join(e.Members, ", "))
		}
	}
	return b.String()
}

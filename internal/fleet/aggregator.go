package fleet

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// Set names one of the three membership sets.
type Set int

const (
	Running Set = iota
	Fault
	Hang

	numSets = 3
)

// Sets lists the membership sets in publication order.
var Sets = []Set{Running, Fault, Hang}

func (s Set) String() string {
	switch s {
	case Running:
		return "Running"
	case Fault:
		return "Fault"
	case Hang:
		return "Hang"
	default:
		return fmt.Sprintf("Set(%d)", int(s))
	}
}

// CountAttribute is the published name of the set's member count.
func (s Set) CountAttribute() string { return s.String() + "Devices" }

// ListAttribute is the published name of the set's member list.
func (s Set) ListAttribute() string { return s.String() + "DevicesList" }

// Listener is called after a set changed and its new value was published.
type Listener func(set Set, members []string)

// Logger defines the logging interface for the aggregator.
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

// Aggregator holds the running, fault and hang sets.
// A device name is in at most one set at a time.
type Aggregator struct {
	publisher device.Publisher
	notifier  device.Notifier
	logger    Logger
	changes   *ChangesLog

	mu        sync.Mutex
	members   [numSets][]string
	published [numSets]int
	seq       [numSets]uint64
	listeners []Listener

	// pubMu orders publications; pubSeq is the newest snapshot published per set.
	pubMu  sync.Mutex
	pubSeq [numSets]uint64

	// now is replaced in tests.
	now func() time.Time
}

// setChange is a set's state captured under the lock, published after it.
type setChange struct {
	set     Set
	action  Action
	device  string
	members []string
	seq     uint64
	logged  bool
}

// New creates an Aggregator. publisher and notifier may be nil.
func New(publisher device.Publisher, notifier device.Notifier) *Aggregator {
	return &Aggregator{
		publisher: publisher,
		notifier:  notifier,
		logger:    noopLogger{},
		changes:   NewChangesLog(),
		now:       time.Now,
	}
}

// SetLogger sets the logger for the aggregator.
func (a *Aggregator) SetLogger(logger Logger) {
	a.logger = logger
}

// Changes returns the changes log fed by this aggregator.
func (a *Aggregator) Changes() *ChangesLog {
	return a.changes
}

// OnChange registers a listener for membership changes.
func (a *Aggregator) OnChange(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// AppendTo adds name to set and removes it from the other two sets.
// It reports whether set changed; adding a member again logs a warning.
func (a *Aggregator) AppendTo(set Set, name string) bool {
	a.mu.Lock()
	if slices.Contains(a.members[set], name) {
		a.mu.Unlock()
		a.logger.Warn("device already in set", "device", name, "set", set.String())
		return false
	}

	var changes []setChange
	for _, other := range Sets {
		if other == set {
			continue
		}
		if i := slices.Index(a.members[other], name); i >= 0 {
			a.members[other] = slices.Delete(a.members[other], i, i+1)
			changes = append(changes, a.captureLocked(other, ActionRemove, name))
		}
	}
	a.members[set] = append(a.members[set], name)
	changes = append(changes, a.captureLocked(set, ActionAppend, name))
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	a.logger.Info("device appended to set", "device", name, "set", set.String())
	a.emit(changes, listeners)
	return true
}

// RemoveFrom removes name from set and reports whether set changed.
// Removing a missing member logs a warning.
func (a *Aggregator) RemoveFrom(set Set, name string) bool {
	a.mu.Lock()
	i := slices.Index(a.members[set], name)
	if i < 0 {
		a.mu.Unlock()
		a.logger.Warn("device was not in set", "device", name, "set", set.String())
		return false
	}
	a.members[set] = slices.Delete(a.members[set], i, i+1)
	changes := []setChange{a.captureLocked(set, ActionRemove, name)}
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	a.logger.Info("device removed from set", "device", name, "set", set.String())
	a.emit(changes, listeners)
	return true
}

// Contains reports whether name is in set.
func (a *Aggregator) Contains(set Set, name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Contains(a.members[set], name)
}

// Members returns a copy of set's members in storage order.
func (a *Aggregator) Members(set Set) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.members[set])
}

// Counts returns the size of each set.
func (a *Aggregator) Counts() (running, fault, hang int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.members[Running]), len(a.members[Fault]), len(a.members[Hang])
}

// Snapshot is a consistent copy of the three sets.
type Snapshot struct {
	Running        []string `json:"running"`
	Fault          []string `json:"fault"`
	Hang           []string `json:"hang"`
	PendingChanges int      `json:"pending_changes"`
}

// Snapshot returns a consistent copy of the three sets.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{
		Running: slices.Clone(a.members[Running]),
		Fault:   slices.Clone(a.members[Fault]),
		Hang:    slices.Clone(a.members[Hang]),
	}
	a.mu.Unlock()
	s.PendingChanges = a.changes.Len()
	return s
}

// captureLocked records a set change and, when the count moved since the
// last publication, appends it to the changes log. Callers hold a.mu.
func (a *Aggregator) captureLocked(set Set, action Action, name string) setChange {
	members := append([]string{}, a.members[set]...)
	a.seq[set]++
	c := setChange{set: set, action: action, device: name, members: members, seq: a.seq[set]}

	if count := len(members); count != a.published[set] {
		a.published[set] = count
		a.changes.Append(Entry{
			Time:    a.now(),
			Set:     set,
			Action:  action,
			Device:  name,
			Count:   count,
			Members: members,
		})
		c.logged = true
	}
	return c
}

// emit publishes the captured changes, alerts on fault and hang changes
// and calls the listeners. Runs without a.mu. A snapshot older than one
// already published for its set is not published again.
func (a *Aggregator) emit(changes []setChange, listeners []Listener) {
	for _, c := range changes {
		a.publishSnapshot(c)

		if c.logged && (c.set == Fault || c.set == Hang) {
			a.alert(c)
		}
	}

	for _, c := range changes {
		for _, l := range listeners {
			a.callListener(l, c)
		}
	}
}

func (a *Aggregator) publishSnapshot(c setChange) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	if c.seq <= a.pubSeq[c.set] {
		a.logger.Debug("skipping stale set publication", "set", c.set.String(), "seq", c.seq)
		return
	}
	a.pubSeq[c.set] = c.seq
	a.publish(device.NewChange(c.set.CountAttribute(), len(c.members)))
	a.publish(device.NewChange(c.set.ListAttribute(), c.members))
}

func (a *Aggregator) publish(change device.Change) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishChange(change); err != nil {
		a.logger.Warn("publishing set change failed", "attribute", change.Name, "error", err)
	}
}

func (a *Aggregator) alert(c setChange) {
	if a.notifier == nil {
		return
	}

	var b strings.Builder
	verb := "appended to"
	if c.action == ActionRemove {
		verb = "removed from"
	}
	fmt.Fprintf(&b, "%s %s the %s list.\n", c.device, verb, c.set)
	fmt.Fprintf(&b, "%s (%d): %s", c.set.ListAttribute(), len(c.members), strings.Join(c.members, ", "))

	subject := fmt.Sprintf("%s list changed", c.set)
	if err := a.notifier.Notify(context.Background(), subject, b.String()); err != nil {
		a.logger.Warn("set change notification failed", "set", c.set.String(), "error", err)
	}
}

func (a *Aggregator) callListener(l Listener, c setChange) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("membership listener panicked", "set", c.set.String(), "panic", r)
		}
	}()
	l(c.set, slices.Clone(c.members))
}

package fleet

import (
	"slices"
	"strconv"
	"sync"
	"time"
)

// Action is the kind of membership change recorded in the changes log.
type Action string

const (
	ActionAppend Action = "append"
	ActionRemove Action = "remove"
)

// stampLayout is the second-resolution timestamp of a log key.
const stampLayout = "2006-01-02 15:04:05"

// Entry is one recorded membership change.
type Entry struct {
	// Stamp is the change time at second resolution, suffixed "#2", "#3"
	// when several changes of the same set share a second.
	Stamp   string    `json:"stamp"`
	Time    time.Time `json:"time"`
	Set     Set       `json:"-"`
	Action  Action    `json:"action"`
	Device  string    `json:"device"`
	Count   int       `json:"count"`
	Members []string  `json:"members"`
}

// Key identifies the entry in the log: the set's count attribute and the stamp.
func (e Entry) Key() string {
	return e.Set.CountAttribute() + " " + e.Stamp
}

// ChangesLog collects membership changes between two digests.
// It is safe for concurrent use.
type ChangesLog struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]int
}

// NewChangesLog creates an empty log.
func NewChangesLog() *ChangesLog {
	return &ChangesLog{seen: make(map[string]int)}
}

// Append records e, assigning its unique stamp, and returns the stored entry.
func (l *ChangesLog) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := e.Set.CountAttribute() + " " + e.Time.Format(stampLayout)
	l.seen[base]++
	e.Stamp = e.Time.Format(stampLayout)
	if n := l.seen[base]; n > 1 {
		e.Stamp += "#" + strconv.Itoa(n)
	}
	e.Members = slices.Clone(e.Members)

	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of pending entries.
func (l *ChangesLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the pending entries in arrival order.
func (l *ChangesLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Drain returns the pending entries and clears the log.
func (l *ChangesLog) Drain() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	clear(l.seen)
	return out
}

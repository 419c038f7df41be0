package device

import (
	"fmt"
	"strings"
	"time"
)

// State is the operational state a device reports on the bus.
//
// UNKNOWN, RUNNING and FAULT drive the watchdog's state machine. Any other
// value (ON, STANDBY, ALARM, ...) is an "other" state: the device answers
// but is neither running nor faulty.
type State string

// Well-known states.
const (
	// StateUnknown is the initial state and the state after a failed poll cycle.
	StateUnknown State = "UNKNOWN"
	StateRunning State = "RUNNING"
	StateFault   State = "FAULT"
)

// ParseState normalises a raw state value (case and surrounding whitespace).
func ParseState(raw string) (State, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidState)
	}
	return State(s), nil
}

// IsRunning reports whether s is RUNNING.
func (s State) IsRunning() bool { return s == StateRunning }

// IsFault reports whether s is FAULT.
func (s State) IsFault() bool { return s == StateFault }

// IsUnknown reports whether s is UNKNOWN (or unset).
func (s State) IsUnknown() bool { return s == StateUnknown || s == "" }

// IsOther reports whether s is a reported state other than RUNNING and FAULT.
func (s State) IsOther() bool {
	return !s.IsRunning() && !s.IsFault() && !s.IsUnknown()
}

func (s State) String() string { return string(s) }

// Quality qualifies a published attribute value.
type Quality string

// Attribute qualities.
const (
	QualityValid    Quality = "VALID"
	QualityInvalid  Quality = "INVALID"
	QualityChanging Quality = "CHANGING"
	QualityAlarm    Quality = "ALARM"
)

// Event is an asynchronous attribute notification pushed by a device.
type Event struct {
	Device    string
	Attribute string
	Value     any
	Timestamp time.Time

	// Err is set when the event source reports an error instead of a value.
	Err error
}

// HasValue reports whether the event carries a usable value. Nil events,
// error events and events without a value are ignored by consumers.
func (e *Event) HasValue() bool {
	return e != nil && e.Err == nil && e.Value != nil
}

// Change is one value published through a Publisher.
type Change struct {
	Name      string
	Value     any
	Timestamp time.Time
	Quality   Quality
}

// NewChange builds a VALID change stamped with the current time.
func NewChange(name string, value any) Change {
	return Change{
		Name:      name,
		Value:     value,
		Timestamp: time.Now(),
		Quality:   QualityValid,
	}
}

package watchdog

import (
	"strings"
	"sync"
)

// Service states published on the State attribute.
const (
	StateInit  = "INIT"
	StateOn    = "ON"
	StateFault = "FAULT"
)

// maxImportant bounds the important messages kept for the Status text.
const maxImportant = 20

// statusBoard tracks the service state and the messages an operator must
// see in the Status attribute.
type statusBoard struct {
	mu        sync.Mutex
	state     string
	important []string
}

func newStatusBoard() *statusBoard {
	return &statusBoard{state: StateInit}
}

func (b *statusBoard) set(state string) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *statusBoard) get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// note records an important message; the oldest is dropped past maxImportant.
func (b *statusBoard) note(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.important = append(b.important, msg)
	if len(b.important) > maxImportant {
		b.important = b.important[len(b.important)-maxImportant:]
	}
}

// text renders the Status attribute.
func (b *statusBoard) text() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("The watchdog is in ")
	sb.WriteString(b.state)
	sb.WriteString(" state.")
	if len(b.important) > 0 {
		sb.WriteString("\nImportant messages:")
		for _, m := range b.important {
			sb.WriteString("\n - ")
			sb.WriteString(m)
		}
	}
	return sb.String()
}

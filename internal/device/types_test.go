package device

import (
	"errors"
	"testing"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"RUNNING", StateRunning, false},
		{" running ", StateRunning, false},
		{"Fault", StateFault, false},
		{"unknown", StateUnknown, false},
		{"standby", State("STANDBY"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseState(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidState) {
				t.Errorf("ParseState(%q) error = %v, want ErrInvalidState", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStateClassification(t *testing.T) {
	tests := []struct {
		state                         State
		running, fault, unknown, other bool
	}{
		{StateRunning, true, false, false, false},
		{StateFault, false, true, false, false},
		{StateUnknown, false, false, true, false},
		{"", false, false, true, false},
		{"ON", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if tt.state.IsRunning() != tt.running {
				t.Errorf("IsRunning() = %v", tt.state.IsRunning())
			}
			if tt.state.IsFault() != tt.fault {
				t.Errorf("IsFault() = %v", tt.state.IsFault())
			}
			if tt.state.IsUnknown() != tt.unknown {
				t.Errorf("IsUnknown() = %v", tt.state.IsUnknown())
			}
			if tt.state.IsOther() != tt.other {
				t.Errorf("IsOther() = %v", tt.state.IsOther())
			}
		})
	}
}

func TestEventHasValue(t *testing.T) {
	var nilEvent *Event
	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{"nil event", nilEvent, false},
		{"error event", &Event{Value: "RUNNING", Err: errors.New("lost")}, false},
		{"nil value", &Event{Attribute: "State"}, false},
		{"value", &Event{Attribute: "State", Value: "RUNNING"}, true},
		{"zero value", &Event{Attribute: "Temperature", Value: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.HasValue(); got != tt.want {
				t.Errorf("HasValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewChange(t *testing.T) {
	c := NewChange("RunningDevices", 3)
	if c.Quality != QualityValid || c.Timestamp.IsZero() || c.Value != 3 {
		t.Errorf("NewChange() = %+v", c)
	}
}

package dealer

import (
	"context"
	"fmt"
	"slices"

	"github.com/nerrad567/gray-logic-watchdog/internal/device"
)

// Candidate is a device the dealer may write to. *monitor.Monitor satisfies it.
type Candidate interface {
	Name() string
	State() device.State
	HasExtraAttribute(attr string) bool
	WriteAttribute(ctx context.Context, attr string, value any) error
}

// Logger defines the logging interface for the dealer.
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

// Dealer distributes one policy's values over the eligible candidates.
// It is immutable after New.
type Dealer struct {
	policy     Policy
	attributes []string
	states     []device.State
	devices    []Candidate
	logger     Logger
}

// Result summarises one distribution pass.
type Result struct {
	Policy     string `json:"policy"`
	Candidates int    `json:"candidates"`
	Writes     int    `json:"writes"`
	Failures   int    `json:"failures"`
}

// New creates a dealer. Every attribute must be mirrored by every device.
// Empty states default to RUNNING only.
func New(policy Policy, attributes []string, states []device.State, devices []Candidate) (*Dealer, error) {
	for _, attr := range attributes {
		for _, d := range devices {
			if !d.HasExtraAttribute(attr) {
				return nil, fmt.Errorf("%w: %s on %s", ErrAttributeNotMirrored, attr, d.Name())
			}
		}
	}
	if len(states) == 0 {
		states = []device.State{device.StateRunning}
	}
	return &Dealer{
		policy:     policy,
		attributes: slices.Clone(attributes),
		states:     slices.Clone(states),
		devices:    slices.Clone(devices),
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the dealer.
func (d *Dealer) SetLogger(logger Logger) {
	d.logger = logger
}

// Policy returns the dealer's policy.
func (d *Dealer) Policy() Policy { return d.policy }

// Candidates returns the devices whose state is eligible, in configuration order.
func (d *Dealer) Candidates() []Candidate {
	var out []Candidate
	for _, c := range d.devices {
		if slices.Contains(d.states, c.State()) {
			out = append(out, c)
		}
	}
	return out
}

// Pairs returns the attribute pairs. An odd trailing attribute has no
// partner and is left out.
func (d *Dealer) Pairs() [][2]string {
	pairs := make([][2]string, 0, len(d.attributes)/2)
	for i := 0; i+1 < len(d.attributes); i += 2 {
		pairs = append(pairs, [2]string{d.attributes[i], d.attributes[i+1]})
	}
	return pairs
}

// Distribute writes the policy's values to the candidates. A failed write
// is logged and the pass continues.
func (d *Dealer) Distribute(ctx context.Context) Result {
	res := Result{Policy: d.policy.Name()}

	candidates := d.Candidates()
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		d.logger.Debug("no dealer candidates")
		return res
	}

	if len(d.attributes) == 0 {
		d.logger.Warn("dealer has no attributes to write")
		return res
	}
	if len(d.attributes)%2 != 0 {
		d.logger.Warn("dealer attribute without partner skipped", "attribute", d.attributes[len(d.attributes)-1])
	}

	values := d.policy.Values(len(candidates))
	n := len(values)
	d.logger.Debug("dealer distribution", "policy", d.policy.Name(), "values", values)

	pairs := d.Pairs()
	for i, c := range candidates {
		for _, pair := range pairs {
			d.write(ctx, c, pair[0], values[i], &res)
			d.write(ctx, c, pair[1], values[n-1-i], &res)
		}
	}

	d.logger.Info("dealer distribution done",
		"policy", res.Policy,
		"candidates", res.Candidates,
		"writes", res.Writes,
		"failures", res.Failures,
	)
	return res
}

func (d *Dealer) write(ctx context.Context, c Candidate, attr string, value int, res *Result) {
	if err := c.WriteAttribute(ctx, attr, value); err != nil {
		res.Failures++
		d.logger.Error("dealer write failed", "device", c.Name(), "attribute", attr, "value", value, "error", err)
		return
	}
	res.Writes++
}

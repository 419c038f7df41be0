package watchdog

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-watchdog/internal/attribute"
	"github.com/nerrad567/gray-logic-watchdog/internal/dealer"
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
	"github.com/nerrad567/gray-logic-watchdog/internal/monitor"
)

func (s *Service) registerServiceAttributes() error {
	return registerAll(s.registry,
		attribute.Binding{Name: AttrState, Description: "Watchdog state (INIT, ON, FAULT)", Initial: StateInit},
		attribute.Binding{Name: AttrStatus, Description: "Watchdog status text", Initial: s.status.text()},
	)
}

func (s *Service) registerFleetAttributes() error {
	for _, set := range fleet.Sets {
		err := registerAll(s.registry,
			attribute.Binding{
				Name:        set.CountAttribute(),
				Description: fmt.Sprintf("Number of devices in the %s set", set),
				Initial:     0,
			},
			attribute.Binding{
				Name:        set.ListAttribute(),
				Description: fmt.Sprintf("Devices in the %s set", set),
				Initial:     []string{},
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) registerDeviceAttributes(m *monitor.Monitor) error {
	err := s.registry.Register(attribute.Binding{
		Name:        device.AttributeName(m.Name(), "State"),
		Description: "State of " + m.Name(),
		Device:      m.Name(),
		Attribute:   "State",
		Initial:     string(device.StateUnknown),
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", m.Name(), err)
	}
	for _, extra := range m.ExtraAttributes() {
		err := s.registry.Register(attribute.Binding{
			Name:        device.AttributeName(m.Name(), extra),
			Description: fmt.Sprintf("Mirror of %s/%s", m.Name(), extra),
			Device:      m.Name(),
			Attribute:   extra,
		})
		if err != nil {
			return fmt.Errorf("registering %s/%s: %w", m.Name(), extra, err)
		}
	}
	return nil
}

func (s *Service) registerDealerAttributes() error {
	return registerAll(s.registry,
		attribute.Binding{
			Name:        AttrDealers,
			Description: "Selectable dealer policies",
			Initial:     s.dealers.Options(),
		},
		attribute.Binding{
			Name:        AttrDealer,
			Description: "Active dealer policy (empty when disabled)",
			Initial:     "",
			Write:       s.writeDealer,
		},
	)
}

// writeDealer handles a client selection of the dealer policy.
func (s *Service) writeDealer(ctx context.Context, value any) error {
	name, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: dealer must be a policy name, got %T", attribute.ErrInvalidValue, value)
	}
	if err := s.dealers.Select(ctx, name); err != nil {
		if errors.Is(err, dealer.ErrUnknownPolicy) || errors.Is(err, dealer.ErrAttributeNotMirrored) {
			return invalidValue(err)
		}
		return err
	}
	s.publish(AttrDealer, s.dealers.Active())
	return nil
}

func registerAll(r *attribute.Registry, bindings ...attribute.Binding) error {
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			return fmt.Errorf("registering %s: %w", b.Name, err)
		}
	}
	return nil
}

package watchdog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-watchdog/internal/attribute"
	"github.com/nerrad567/gray-logic-watchdog/internal/dealer"
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleet"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-watchdog/internal/monitor"
)

// Published watchdog-level attribute names.
const (
	AttrState   = "State"
	AttrStatus  = "Status"
	AttrDealers = "Dealers"
	AttrDealer  = "Dealer"
)

// HandleFactory returns the bus handle of one device.
type HandleFactory func(device, stateAttribute string) device.Handle

// Recorder receives telemetry. *influxdb.Client satisfies it.
type Recorder interface {
	monitor.Recorder
	attribute.AttributeWriter
	WriteFleetCounts(running, fault, hang int)
}

// WatchList supplies the devices to monitor and memorises settings.
// *device.WatchList satisfies it.
type WatchList interface {
	Load(ctx context.Context, lines []string) ([]device.WatchedDevice, error)
	dealer.Memory
}

// Deps are the bindings a Service runs on. Handles, Subscriber and
// WatchList are required; a nil FleetManager disables hang recovery and a
// nil Recorder disables telemetry.
type Deps struct {
	Handles      HandleFactory
	Subscriber   device.Subscriber
	Publisher    device.Publisher
	Notifier     device.Notifier
	FleetManager device.FleetManager
	Recorder     Recorder
	WatchList    WatchList
	Logger       *logging.Logger
}

// Service is the running watchdog.
type Service struct {
	cfg    *config.Config
	logger *logging.Logger

	registry   *attribute.Registry
	aggregator *fleet.Aggregator
	reporter   *fleet.Reporter
	dealers    *dealer.Manager
	recorder   Recorder
	status     *statusBoard

	monitors []*monitor.Monitor
	byName   map[string]*monitor.Monitor
	failed   []string
}

// New builds the service from cfg. Devices whose monitor cannot be built
// are skipped and reported in the Status attribute; the service then
// starts in FAULT.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Handles == nil {
		return nil, fmt.Errorf("%w: handle factory", ErrMissingDependency)
	}
	if deps.Subscriber == nil {
		return nil, fmt.Errorf("%w: subscriber", ErrMissingDependency)
	}
	if deps.WatchList == nil {
		return nil, fmt.Errorf("%w: watch list", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	s := &Service{
		cfg:      cfg,
		logger:   deps.Logger,
		registry: attribute.NewRegistry(),
		recorder: deps.Recorder,
		status:   newStatusBoard(),
		byName:   make(map[string]*monitor.Monitor),
	}
	s.registry.SetLogger(deps.Logger.Component("attributes"))
	if deps.Publisher != nil {
		s.registry.AddSink("mqtt", attribute.PublisherSink(deps.Publisher))
	}
	if deps.Recorder != nil {
		s.registry.AddSink("influxdb", attribute.InfluxSink(deps.Recorder, cfg.Service.Name))
	}

	if err := s.registerServiceAttributes(); err != nil {
		return nil, err
	}

	s.aggregator = fleet.New(s.registry, deps.Notifier)
	s.aggregator.SetLogger(deps.Logger.Component("fleet"))
	if err := s.registerFleetAttributes(); err != nil {
		return nil, err
	}

	watched, err := deps.WatchList.Load(ctx, cfg.Watchdog.DevicesList)
	if err != nil {
		s.logger.Error("watch list store unavailable, using configured devices only", "error", err)
		s.note("watch list store unavailable: " + err.Error())
	}
	if len(watched) == 0 {
		s.logger.Warn("no devices to monitor")
		s.note("no devices to monitor")
	}

	if err := s.buildMonitors(watched, deps); err != nil {
		return nil, err
	}

	s.dealers = dealer.NewManager(dealerSettings(cfg.Dealer, s.logger), candidates(s.monitors), deps.WatchList)
	s.dealers.SetLogger(deps.Logger.Component("dealer"))
	if err := s.registerDealerAttributes(); err != nil {
		return nil, err
	}

	s.aggregator.OnChange(s.fleetChanged)

	s.reporter = fleet.NewReporter(s.aggregator.Changes(), deps.Notifier, reportPeriod(cfg))
	s.reporter.SetLogger(deps.Logger.Component("digest"))

	return s, nil
}

// buildMonitors creates one monitor per device, in watch-list order.
func (s *Service) buildMonitors(watched []device.WatchedDevice, deps Deps) error {
	wcfg := s.cfg.Watchdog
	poll := wcfg.PollPeriod
	if poll <= 0 {
		poll = monitor.DefaultPollPeriod
	}

	for i, wd := range watched {
		var delay time.Duration
		if wcfg.Stagger {
			delay = staggerDelay(poll, len(watched), i)
		}

		m, err := monitor.New(monitor.Config{
			Name:            wd.Name,
			StateAttribute:  wcfg.StateAttribute,
			ExtraAttributes: extraAttributes(s.cfg, wd),
			FaultRecovery:   wcfg.TryFaultRecover,
			HangRecovery:    wcfg.TryHangRecover,
			PollPeriod:      poll,
			OverlapsAlert:   wcfg.OverlapsAlert,
			StartDelay:      delay,
			StopAttempts:    s.cfg.FleetManager.StopAttempts,
			StopWait:        s.cfg.FleetManager.StopWait,
		}, monitor.Deps{
			Handle:       deps.Handles(wd.Name, wcfg.StateAttribute),
			Subscriber:   deps.Subscriber,
			Fleet:        s.aggregator,
			FleetManager: deps.FleetManager,
			Notifier:     deps.Notifier,
			Publisher:    s.registry,
			Recorder:     deps.Recorder,
			Logger:       s.logger.Component("monitor"),
		})
		if err != nil {
			s.logger.Error("cannot monitor device", "device", wd.Name, "error", err)
			s.note(fmt.Sprintf("cannot monitor %s: %v", wd.Name, err))
			s.failed = append(s.failed, wd.Name)
			continue
		}

		if err := s.registerDeviceAttributes(m); err != nil {
			return err
		}
		s.monitors = append(s.monitors, m)
		s.byName[strings.ToLower(wd.Name)] = m
	}
	return nil
}

// Run publishes the initial attributes, restores the dealer and runs every
// poll loop, the dealer and the digest reporter until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.restoreDealer(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range s.monitors {
		g.Go(func() error { return m.Run(gctx) })
	}
	g.Go(func() error { return s.reporter.Run(gctx) })
	g.Go(func() error { return s.dealers.Run(gctx) })

	// A FAULT raised before Run, such as lost telemetry, is kept.
	if len(s.failed) > 0 || s.status.get() == StateFault {
		s.setState(StateFault)
	} else {
		s.setState(StateOn)
	}
	s.logger.Info("watchdog running",
		"devices", len(s.monitors),
		"failed", len(s.failed),
		"dealer", s.dealers.Active(),
		"report_period", s.reporter.Period(),
	)

	err := g.Wait()
	if err != nil {
		s.setState(StateFault)
		s.note("stopped on error: " + err.Error())
		return err
	}
	s.logger.Info("watchdog stopped")
	return nil
}

// restoreDealer selects the memorised or configured dealer. A rejected
// selection leaves the dealer disabled.
func (s *Service) restoreDealer(ctx context.Context) {
	if err := s.dealers.Restore(ctx, s.cfg.Dealer.Policy); err != nil {
		s.note("dealer disabled: " + err.Error())
	}
	s.publish(AttrDealer, s.dealers.Active())
}

// fleetChanged runs after every fleet set change, outside the aggregator lock.
func (s *Service) fleetChanged(set fleet.Set, _ []string) {
	if set == fleet.Running {
		s.dealers.Trigger()
	}
	if s.recorder != nil {
		s.recorder.WriteFleetCounts(s.aggregator.Counts())
	}
}

// Registry returns the published attribute registry.
func (s *Service) Registry() *attribute.Registry { return s.registry }

// Fleet returns the fleet aggregator.
func (s *Service) Fleet() *fleet.Aggregator { return s.aggregator }

// Reporter returns the digest reporter.
func (s *Service) Reporter() *fleet.Reporter { return s.reporter }

// Dealers returns the dealer manager.
func (s *Service) Dealers() *dealer.Manager { return s.dealers }

// State returns the service state.
func (s *Service) State() string { return s.status.get() }

// Monitor returns the monitor of a device (case-insensitive).
func (s *Service) Monitor(name string) (*monitor.Monitor, bool) {
	m, ok := s.byName[strings.ToLower(name)]
	return m, ok
}

// Devices returns a snapshot of every monitor in configuration order.
func (s *Service) Devices() []monitor.Snapshot {
	out := make([]monitor.Snapshot, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, m.Snapshot())
	}
	return out
}

// Device returns the snapshot of one monitor.
func (s *Service) Device(name string) (monitor.Snapshot, bool) {
	m, ok := s.Monitor(name)
	if !ok {
		return monitor.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// Fail puts the service in FAULT with msg in the Status attribute.
func (s *Service) Fail(msg string) {
	s.setState(StateFault)
	s.note(msg)
}

func (s *Service) setState(state string) {
	s.status.set(state)
	s.publish(AttrState, state)
	s.publish(AttrStatus, s.status.text())
}

func (s *Service) note(msg string) {
	s.status.note(msg)
	s.publish(AttrStatus, s.status.text())
}

func (s *Service) publish(name string, value any) {
	if err := s.registry.PublishChange(device.NewChange(name, value)); err != nil {
		s.logger.Warn("publishing attribute failed", "attribute", name, "error", err)
	}
}

// extraAttributes appends the stored extra attributes to the configured ones.
func extraAttributes(cfg *config.Config, wd device.WatchedDevice) []string {
	return append(cfg.ExtraAttributesFor(wd.Name), wd.ExtraAttributes...)
}

func dealerSettings(cfg config.DealerConfig, logger *logging.Logger) dealer.Settings {
	settings := dealer.Settings{
		Attributes:  cfg.Attributes,
		Equidistant: dealer.Equidistant{Offset: cfg.Equidistant.Offset, Step: cfg.Equidistant.Step},
		MinMax:      dealer.MinMax{Min: cfg.MinMax.Min, Max: cfg.MinMax.Max},
	}
	for _, raw := range cfg.States {
		st, err := device.ParseState(raw)
		if err != nil {
			logger.Warn("ignoring dealer state", "state", raw, "error", err)
			continue
		}
		settings.States = append(settings.States, st)
	}
	return settings
}

func candidates(monitors []*monitor.Monitor) []dealer.Candidate {
	out := make([]dealer.Candidate, len(monitors))
	for i, m := range monitors {
		out[i] = m
	}
	return out
}

// staggerDelay spreads the first checks of n devices over one poll period.
func staggerDelay(poll time.Duration, n, i int) time.Duration {
	if n <= 0 {
		return 0
	}
	return poll / time.Duration(n) * time.Duration(i)
}

func reportPeriod(cfg *config.Config) time.Duration {
	if p := cfg.ReportPeriod(); p > 0 {
		return p
	}
	return fleet.DefaultReportPeriod
}

// invalidValue marks a write rejected for its value.
func invalidValue(err error) error {
	if errors.Is(err, attribute.ErrInvalidValue) {
		return err
	}
	return fmt.Errorf("%w: %w", attribute.ErrInvalidValue, err)
}

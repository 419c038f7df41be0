// Gray Logic Watchdog - fleet health monitor for bus-attached device servers.
//
// The watchdog polls every configured device over the MQTT bus, recovers
// faulty and hung devices, publishes the fleet sets as attributes and sends
// periodic digests of the fleet changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-watchdog/internal/api"
	"github.com/nerrad567/gray-logic-watchdog/internal/audit"
	"github.com/nerrad567/gray-logic-watchdog/internal/auth"
	"github.com/nerrad567/gray-logic-watchdog/internal/bus"
	"github.com/nerrad567/gray-logic-watchdog/internal/device"
	"github.com/nerrad567/gray-logic-watchdog/internal/fleetmgr"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-watchdog/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-watchdog/internal/watchdog"
	"github.com/nerrad567/gray-logic-watchdog/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/watchdog.yaml"

// options are the command-line options.
type options struct {
	configPath  string
	showVersion bool
	issueToken  bool
	role        string
	subject     string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Printf("watchdog %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.issueToken:
		if err := issueToken(os.Stdout, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. The config path defaults to
// WATCHDOG_CONFIG, then to defaultConfigPath.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("watchdog", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	fs.BoolVar(&opts.issueToken, "issue-token", false, "print an API bearer token and exit")
	fs.StringVar(&opts.role, "role", string(auth.RoleOperator), "role of the issued token (viewer, operator)")
	fs.StringVar(&opts.subject, "subject", "watchdog-cli", "subject of the issued token")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func getConfigPath() string {
	if path := os.Getenv("WATCHDOG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// issueToken signs a bearer token with the configured JWT secret.
func issueToken(w io.Writer, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	role := auth.Role(opts.role)
	if !auth.IsValidRole(role) {
		return fmt.Errorf("%w: %q", auth.ErrInvalidRole, opts.role)
	}
	ttl := time.Duration(cfg.Security.JWT.TokenTTL) * time.Minute
	token, err := auth.GenerateToken(opts.subject, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting Gray Logic Watchdog",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Watch list store and audit trail (optional)
	watchList := device.NewWatchList(nil)
	var auditLog api.AuditLog
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.Source()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", cfg.Database.Path)
		watchList = device.NewWatchList(device.NewSQLiteRepository(db.DB))
		auditLog = audit.NewSQLiteRepository(db.DB)
	} else {
		log.Info("database disabled, watch list comes from configuration only")
	}
	watchList.SetLogger(log.Component("watchlist"))

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	deviceBus := bus.New(mqttClient, bus.Options{
		QoS:     mqttClient.DefaultQoS(),
		Timeout: cfg.Watchdog.RequestTimeout,
	})
	deviceBus.SetLogger(log.Component("bus"))
	if err := deviceBus.Start(); err != nil {
		return fmt.Errorf("starting device bus: %w", err)
	}
	defer func() {
		if stopErr := deviceBus.Stop(); stopErr != nil {
			log.Warn("error stopping device bus", "error", stopErr)
		}
	}()
	notifier := bus.NewNotifier(mqttClient, mqttClient.DefaultQoS(), cfg.Service.Name, cfg.Notify.Recipients)

	deps := watchdog.Deps{
		Handles: func(dev, stateAttr string) device.Handle {
			return deviceBus.Handle(dev, stateAttr)
		},
		Subscriber: deviceBus,
		Publisher:  deviceBus,
		Notifier:   notifier,
		WatchList:  watchList,
		Logger:     log,
	}

	// Telemetry (optional). A failed connection runs the watchdog without it.
	var telemetryErr error
	var telemetry api.HealthChecker
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			telemetryErr = err
			log.Error("InfluxDB unavailable, telemetry disabled", "error", err)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			deps.Recorder = influxClient
			telemetry = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	// Device-server instances (optional). Hang recovery needs them.
	var instances api.InstanceView
	if cfg.FleetManager.Enabled {
		fm, err := fleetmgr.New(cfg.FleetManager)
		if err != nil {
			return fmt.Errorf("creating fleet manager: %w", err)
		}
		fm.SetLogger(log.Component("fleetmgr"))
		if err := fm.StartAll(ctx); err != nil {
			return fmt.Errorf("starting managed instances: %w", err)
		}
		defer func() {
			log.Info("stopping managed instances")
			fm.StopAll()
		}()
		deps.FleetManager = fm
		instances = fm
	}

	svc, err := watchdog.New(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("creating watchdog: %w", err)
	}
	if telemetryErr != nil {
		svc.Fail("telemetry unavailable: " + telemetryErr.Error())
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Attributes: svc.Registry(),
			Fleet:      svc.Fleet(),
			Devices:    svc,
			Digest:     svc.Reporter(),
			Instances:  instances,
			Audit:      auditLog,
			Bus:        mqttClient,
			Telemetry:  telemetry,
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		svc.Registry().AddSink("websocket", server.Hub())
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete")
	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("running watchdog: %w", err)
	}

	log.Info("Gray Logic Watchdog stopped")
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Watchdog.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Watchdog     WatchdogConfig     `yaml:"watchdog"`
	Dealer       DealerConfig       `yaml:"dealer"`
	FleetManager FleetManagerConfig `yaml:"fleet_manager"`
	Notify       NotifyConfig       `yaml:"notify"`
	Security     SecurityConfig     `yaml:"security"`
}

// ServiceConfig identifies this watchdog instance.
type ServiceConfig struct {
	// Name is used as the notification subject prefix and MQTT client identity.
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WatchdogConfig describes the watched fleet and the monitor behaviour.
type WatchdogConfig struct {
	// DevicesList holds device names. Each line may carry several
	// comma-separated names.
	DevicesList []string `yaml:"devices_list"`

	// ExtraAttributes are mirrored for every device.
	ExtraAttributes []string `yaml:"extra_attributes"`

	// DeviceExtraAttributes adds per-device mirrored attributes, keyed by
	// device name (case-insensitive).
	DeviceExtraAttributes map[string][]string `yaml:"device_extra_attributes"`

	// StateAttribute is the primary state attribute name on each device.
	// Default: "State"
	StateAttribute string `yaml:"state_attribute"`

	// TryFaultRecover enables the soft reinit procedure for devices in FAULT.
	TryFaultRecover bool `yaml:"try_fault_recover"`

	// TryHangRecover enables the instance restart procedure for unresponsive
	// devices. Requires fleet_manager.enabled.
	TryHangRecover bool `yaml:"try_hang_recover"`

	// PollPeriod is the time between two checks of the same device.
	// Default: 180s
	PollPeriod time.Duration `yaml:"poll_period"`

	// OverlapsAlert is the number of consecutive overrunning checks that
	// escalate a notification. Default: 10
	OverlapsAlert int `yaml:"overlaps_alert"`

	// Stagger spreads the first check of every device over one poll period.
	Stagger bool `yaml:"stagger"`

	// ReportPeriodHours is the digest period. Default: 8
	ReportPeriodHours float64 `yaml:"report_period_hours"`

	// RequestTimeout bounds one request/response round trip to a device.
	// Default: 3s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DealerConfig configures value distribution over running devices.
type DealerConfig struct {
	// Policy is the active policy: "Equidistant" or "MinMax". Empty disables the dealer.
	Policy string `yaml:"policy"`

	// Attributes is a flat list consumed in pairs (forward, mirrored).
	Attributes []string `yaml:"attributes"`

	// States lists the device states eligible for distribution. Default: [RUNNING]
	States []string `yaml:"states"`

	Equidistant EquidistantConfig `yaml:"equidistant"`
	MinMax      MinMaxConfig      `yaml:"minmax"`
}

// EquidistantConfig holds the Equidistant policy parameters.
type EquidistantConfig struct {
	Offset int `yaml:"offset"`
	Step   int `yaml:"step"`
}

// MinMaxConfig holds the MinMax policy parameters.
type MinMaxConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// FleetManagerConfig configures the process-backed fleet manager used by hang recovery.
type FleetManagerConfig struct {
	Enabled bool `yaml:"enabled"`

	// StopAttempts bounds the stop retries of a hang recovery. Default: 2
	StopAttempts int `yaml:"stop_attempts"`

	// StopWait is the pause between two stop attempts. Default: 3s
	StopWait time.Duration `yaml:"stop_wait"`

	Instances []InstanceConfig `yaml:"instances"`
}

// InstanceConfig declares one supervised device-server process.
type InstanceConfig struct {
	Name    string   `yaml:"name"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Devices []string `yaml:"devices"`

	// Managed instances are started together with the watchdog.
	Managed bool `yaml:"managed"`

	// RestartOnFailure restarts the process when it exits unexpectedly.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// NotifyConfig configures operator notifications.
type NotifyConfig struct {
	// Recipients are carried in every alert for downstream delivery.
	Recipients []string `yaml:"recipients"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	// Secret signs bearer tokens. Empty disables write access to the API.
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of issued tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WATCHDOG_SECTION_KEY
// For example: WATCHDOG_MQTT_HOST, WATCHDOG_POLL_PERIOD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "watchdog",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/watchdog.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-watchdog",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Watchdog: WatchdogConfig{
			StateAttribute:    "State",
			PollPeriod:        180 * time.Second,
			OverlapsAlert:     10,
			Stagger:           true,
			ReportPeriodHours: 8,
			RequestTimeout:    3 * time.Second,
		},
		Dealer: DealerConfig{
			States: []string{"RUNNING"},
		},
		FleetManager: FleetManagerConfig{
			StopAttempts: 2,
			StopWait:     3 * time.Second,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WATCHDOG_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("WATCHDOG_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("WATCHDOG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WATCHDOG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WATCHDOG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("WATCHDOG_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("WATCHDOG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("WATCHDOG_POLL_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WATCHDOG_POLL_PERIOD: %w", err)
		}
		cfg.Watchdog.PollPeriod = d
	}
	if v := os.Getenv("WATCHDOG_REPORT_PERIOD_HOURS"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WATCHDOG_REPORT_PERIOD_HOURS: %w", err)
		}
		cfg.Watchdog.ReportPeriodHours = h
	}

	if v := os.Getenv("WATCHDOG_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.Name == "" {
		errs = append(errs, "service.name is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Watchdog.PollPeriod <= 0 {
		errs = append(errs, "watchdog.poll_period must be positive")
	}
	if c.Watchdog.OverlapsAlert < 1 {
		errs = append(errs, "watchdog.overlaps_alert must be at least 1")
	}
	if c.Watchdog.ReportPeriodHours <= 0 {
		errs = append(errs, "watchdog.report_period_hours must be positive")
	}
	if c.Watchdog.StateAttribute == "" {
		errs = append(errs, "watchdog.state_attribute is required")
	}

	// Hang recovery restarts device-server instances; without a fleet
	// manager there is nothing to restart them with.
	if c.Watchdog.TryHangRecover && !c.FleetManager.Enabled {
		errs = append(errs, "watchdog.try_hang_recover requires fleet_manager.enabled")
	}

	if c.FleetManager.Enabled {
		if c.FleetManager.StopAttempts < 1 {
			errs = append(errs, "fleet_manager.stop_attempts must be at least 1")
		}
		seen := make(map[string]bool, len(c.FleetManager.Instances))
		for i, inst := range c.FleetManager.Instances {
			if inst.Name == "" {
				errs = append(errs, fmt.Sprintf("fleet_manager.instances[%d].name is required", i))
			} else if seen[inst.Name] {
				errs = append(errs, fmt.Sprintf("fleet_manager.instances[%d].name %q is duplicated", i, inst.Name))
			}
			seen[inst.Name] = true
			if inst.Binary == "" {
				errs = append(errs, fmt.Sprintf("fleet_manager.instances[%d].binary is required", i))
			}
		}
	}

	switch strings.ToLower(c.Dealer.Policy) {
	case "", "equidistant", "minmax":
	default:
		errs = append(errs, fmt.Sprintf("dealer.policy %q is not one of Equidistant, MinMax", c.Dealer.Policy))
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReportPeriod returns the digest period as a Duration.
func (c *Config) ReportPeriod() time.Duration {
	return time.Duration(c.Watchdog.ReportPeriodHours * float64(time.Hour))
}

// ExtraAttributesFor returns the mirrored attributes for a device: the
// fleet-wide list followed by the device-specific ones, without duplicates.
func (c *Config) ExtraAttributesFor(device string) []string {
	var attrs []string
	seen := make(map[string]bool)
	add := func(list []string) {
		for _, a := range list {
			a = strings.TrimSpace(a)
			if a == "" || seen[strings.ToLower(a)] {
				continue
			}
			seen[strings.ToLower(a)] = true
			attrs = append(attrs, a)
		}
	}
	add(c.Watchdog.ExtraAttributes)
	for name, list := range c.Watchdog.DeviceExtraAttributes {
		if strings.EqualFold(name, device) {
			add(list)
		}
	}
	return attrs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

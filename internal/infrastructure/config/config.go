package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the FSMosquito client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Client     ClientConfig     `yaml:"client"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	SimConnect SimConnectConfig `yaml:"simconnect"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ClientConfig identifies this bridge instance on the broker.
type ClientConfig struct {
	// ID is substituted into every topic template. Generated when empty.
	ID string `yaml:"id"`

	// AppName is announced to the simulation host when opening a session.
	AppName string `yaml:"app_name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// ServerURL is the broker URL, e.g. "tcp://localhost:1883" or "wss://host/mqtt".
	ServerURL string              `yaml:"server_url"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Timeouts  MQTTTimeoutConfig   `yaml:"timeouts"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTimeoutConfig contains broker operation timeouts in seconds.
type MQTTTimeoutConfig struct {
	Connect int `yaml:"connect"`
	Publish int `yaml:"publish"`
}

// MQTTReconnectConfig controls the randomised reconnect delay.
//
// After an unexpected disconnect the client waits BaseDelay multiplied by a
// value drawn uniformly from [MinMultiplier, MaxMultiplier].
type MQTTReconnectConfig struct {
	BaseDelay     int `yaml:"base_delay"`
	MinMultiplier int `yaml:"min_multiplier"`
	MaxMultiplier int `yaml:"max_multiplier"`
}

// SimConnectConfig contains telemetry host settings.
type SimConnectConfig struct {
	// RelayURL is the SimConnect relay address ("tcp://host:port" or "unix:///path").
	RelayURL string `yaml:"relay_url"`

	// PulseInterval is how often due subscriptions are polled, in milliseconds.
	PulseInterval int `yaml:"pulse_interval"`

	// ReconnectInterval is the fixed delay between connection attempts, in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// RequestIDCeiling is the value at which poll request ids wrap to zero.
	RequestIDCeiling uint32 `yaml:"request_id_ceiling"`
}

// InfluxDBConfig contains InfluxDB connection settings for value history.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FSMOSQUITO_SECTION_KEY
// For example: FSMOSQUITO_MQTT_URL, FSMOSQUITO_SIMCONNECT_URL
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

	applyEnvOverrides(cfg)

	if cfg.Client.ID == "" {
		cfg.Client.ID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// GenerateClientID returns a fresh client id of the form "fsm-<uuid>".
func GenerateClientID() string {
	return "fsm-" + uuid.NewString()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			AppName: "FSMosquito",
		},
		MQTT: MQTTConfig{
			ServerURL: "tcp://localhost:1883",
			QoS:       1,
			KeepAlive: 15,
			Timeouts: MQTTTimeoutConfig{
				Connect: 120,
				Publish: 5,
			},
			Reconnect: MQTTReconnectConfig{
				BaseDelay:     5,
				MinMultiplier: 2,
				MaxMultiplier: 11,
			},
		},
		SimConnect: SimConnectConfig{
			RelayURL:          "tcp://localhost:5557",
			PulseInterval:     1000,
			ReconnectInterval: 15,
			RequestIDCeiling:  1<<31 - 2,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FSMOSQUITO_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FSMOSQUITO_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}

	// MQTT
	if v := os.Getenv("FSMOSQUITO_MQTT_URL"); v != "" {
		cfg.MQTT.ServerURL = v
	}
	if v := os.Getenv("FSMOSQUITO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FSMOSQUITO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FSMOSQUITO_SIMCONNECT_URL"); v != "" {
		cfg.SimConnect.RelayURL = v
	}

	if v := os.Getenv("FSMOSQUITO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FSMOSQUITO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Client.ID == "" {
		errs = append(errs, "client.id is required")
	} else if strings.ContainsAny(c.Client.ID, "/+#") {
		errs = append(errs, "client.id must not contain '/', '+' or '#'")
	}

	// MQTT validation
	if c.MQTT.ServerURL == "" {
		errs = append(errs, "mqtt.server_url is required")
	} else if u, err := url.Parse(c.MQTT.ServerURL); err != nil || u.Scheme == "" {
		errs = append(errs, "mqtt.server_url must be an absolute URL")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keep_alive must be positive")
	}
	r := c.MQTT.Reconnect
	if r.BaseDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.base_delay must be positive")
	}
	if r.MinMultiplier < 1 || r.MaxMultiplier < r.MinMultiplier {
		errs = append(errs, "mqtt.reconnect multipliers must satisfy 1 <= min <= max")
	}

	// SimConnect validation
	if c.SimConnect.RelayURL == "" {
		errs = append(errs, "simconnect.relay_url is required")
	}
	if c.SimConnect.PulseInterval <= 0 {
		errs = append(errs, "simconnect.pulse_interval must be positive")
	}
	if c.SimConnect.ReconnectInterval <= 0 {
		errs = append(errs, "simconnect.reconnect_interval must be positive")
	}
	if c.SimConnect.RequestIDCeiling == 0 {
		errs = append(errs, "simconnect.request_id_ceiling must be positive")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPulseInterval returns the telemetry pulse interval as a Duration.
func (c *Config) GetPulseInterval() time.Duration {
	return time.Duration(c.SimConnect.PulseInterval) * time.Millisecond
}

// GetReconnectInterval returns the telemetry reconnect interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.SimConnect.ReconnectInterval) * time.Second
}

// GetKeepAlive returns the MQTT keep-alive period as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetReconnectBaseDelay returns the MQTT reconnect base delay as a Duration.
func (c *Config) GetReconnectBaseDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.BaseDelay) * time.Second
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SUTA bridge.
// Configuration is loaded from YAML (optional), overridden by environment
// variables, and finally by command-line flags.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	BLE       BLEConfig       `yaml:"ble"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`
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

// BridgeConfig contains bridge behaviour settings.
type BridgeConfig struct {
	// DiscoveryPrefix is the discovery topic prefix consumed by
	// home-automation hubs. Default: "homeassistant".
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// UpdateInterval is how often state updates are re-published for
	// tracked devices, in seconds.
	UpdateInterval int `yaml:"update_interval"`

	// RetryInterval is the fixed delay before a failed bus session is
	// retried, in seconds.
	RetryInterval int `yaml:"retry_interval"`

	// SettleInterval is the pause between discrete actuator pulses, in
	// milliseconds. Models physical travel time per pulse.
	SettleInterval int `yaml:"settle_interval"`
}

// BLEConfig contains Bluetooth adapter settings.
type BLEConfig struct {
	// Adapter selects the Bluetooth adapter, like "hci0".
	// Empty selects the platform default.
	Adapter string `yaml:"adapter"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TelemetryConfig contains optional InfluxDB telemetry settings.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// ErrInvalid wraps all configuration validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

// Load reads configuration from a YAML file and applies environment
// variable overrides. The file is optional: an empty path yields defaults
// plus environment overrides.
//
// Loading order:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Command-line flags are applied by the caller after Load, then Validate
// must be called.
//
// Environment variables follow the pattern SUTA_BRIDGE_SECTION_KEY, for
// example SUTA_BRIDGE_MQTT_PASSWORD.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:     1883,
				ClientID: "suta-bridge",
			},
			QoS: 1,
		},
		Bridge: BridgeConfig{
			DiscoveryPrefix: "homeassistant",
			UpdateInterval:  30,
			RetryInterval:   1,
			SettleInterval:  500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUTA_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SUTA_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SUTA_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SUTA_BRIDGE_DISCOVERY_PREFIX"); v != "" {
		cfg.Bridge.DiscoveryPrefix = v
	}
	if v := os.Getenv("SUTA_BRIDGE_BLE_ADAPTER"); v != "" {
		cfg.BLE.Adapter = v
	}
	if v := os.Getenv("SUTA_BRIDGE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem is collected before returning so a misconfigured
// deployment sees the full list at once rather than fixing parameters
// one restart at a time.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.username is required")
	}
	if c.MQTT.Auth.Password == "" {
		errs = append(errs, "mqtt.auth.password is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Bridge.DiscoveryPrefix == "" {
		errs = append(errs, "bridge.discovery_prefix is required")
	}
	if c.Bridge.UpdateInterval <= 0 {
		errs = append(errs, "bridge.update_interval must be positive")
	}
	if c.Bridge.RetryInterval <= 0 {
		errs = append(errs, "bridge.retry_interval must be positive")
	}
	if c.Bridge.SettleInterval <= 0 {
		errs = append(errs, "bridge.settle_interval must be positive")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Token == "" {
			errs = append(errs, "telemetry.token is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}

// GetUpdateInterval returns the state refresh interval as a Duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.Bridge.UpdateInterval) * time.Second
}

// GetRetryInterval returns the session retry delay as a Duration.
func (c *Config) GetRetryInterval() time.Duration {
	return time.Duration(c.Bridge.RetryInterval) * time.Second
}

// GetSettleInterval returns the actuator settle interval as a Duration.
func (c *Config) GetSettleInterval() time.Duration {
	return time.Duration(c.Bridge.SettleInterval) * time.Millisecond
}

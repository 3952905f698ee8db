package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Bridge.DiscoveryPrefix != "homeassistant" {
		t.Errorf("default discovery prefix = %q, want homeassistant", cfg.Bridge.DiscoveryPrefix)
	}
	if cfg.Bridge.UpdateInterval != 30 {
		t.Errorf("default update interval = %d, want 30", cfg.Bridge.UpdateInterval)
	}
	if cfg.GetRetryInterval() != time.Second {
		t.Errorf("default retry interval = %v, want 1s", cfg.GetRetryInterval())
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
mqtt:
  broker:
    host: broker.example.com
    port: 8883
    tls: true
  auth:
    username: bridge
    password: secret
bridge:
  discovery_prefix: ha
  update_interval: 10
ble:
  adapter: hci1
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("port = %d", cfg.MQTT.Broker.Port)
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("TLS should be enabled")
	}
	if cfg.Bridge.DiscoveryPrefix != "ha" {
		t.Errorf("discovery prefix = %q", cfg.Bridge.DiscoveryPrefix)
	}
	if cfg.BLE.Adapter != "hci1" {
		t.Errorf("adapter = %q", cfg.BLE.Adapter)
	}
	// Defaults survive for values the file does not set.
	if cfg.Bridge.RetryInterval != 1 {
		t.Errorf("retry interval = %d, want default 1", cfg.Bridge.RetryInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("port = %d, want default", cfg.MQTT.Broker.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUTA_BRIDGE_MQTT_HOST", "env-broker")
	t.Setenv("SUTA_BRIDGE_MQTT_PASSWORD", "env-pass")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("host = %q, want env-broker", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Auth.Password != "env-pass" {
		t.Errorf("password = %q, want env-pass", cfg.MQTT.Auth.Password)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	// Host, username and password all missing.
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error should wrap ErrInvalid, got %v", err)
	}

	for _, want := range []string{
		"mqtt.broker.host is required",
		"mqtt.auth.username is required",
		"mqtt.auth.password is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad port", func(c *Config) { c.MQTT.Broker.Port = 0 }, "mqtt.broker.port"},
		{"zero update interval", func(c *Config) { c.Bridge.UpdateInterval = 0 }, "bridge.update_interval"},
		{"zero settle interval", func(c *Config) { c.Bridge.SettleInterval = 0 }, "bridge.settle_interval"},
		{"telemetry without url", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Token = "t" }, "telemetry.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q missing %q", err, tt.want)
			}
		})
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.MQTT.Broker.Host = "localhost"
	cfg.MQTT.Auth.Username = "user"
	cfg.MQTT.Auth.Password = "pass"
	return cfg
}

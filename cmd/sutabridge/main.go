// SUTA Bridge - BLE bed frame to MQTT bridge
//
// Bridges SUTA motorized bed frames to an MQTT broker using the Home
// Assistant discovery convention. Discovered beds are offered for
// pairing; paired beds expose position controls and presets as hub
// entities and survive both bridge and broker restarts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ergotech/suta-bridge/internal/bridge"
	"github.com/ergotech/suta-bridge/internal/infrastructure/config"
	"github.com/ergotech/suta-bridge/internal/infrastructure/influxdb"
	"github.com/ergotech/suta-bridge/internal/infrastructure/logging"
	"github.com/ergotech/suta-bridge/internal/suta"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability.
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("starting SUTA bridge", "version", version, "commit", commit)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"discovery_prefix", cfg.Bridge.DiscoveryPrefix,
	)

	// Connect to InfluxDB (optional)
	var telemetry *influxdb.Client
	if cfg.Telemetry.Enabled {
		telemetry, err = influxdb.Connect(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetry.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetry.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)
	} else {
		log.Info("telemetry disabled")
	}

	controller, err := suta.NewController(cfg.BLE.Adapter)
	if err != nil {
		return fmt.Errorf("enabling bluetooth: %w", err)
	}
	controller.SetLogger(log.With("component", "ble"))
	log.Info("bluetooth adapter enabled", "adapter", cfg.BLE.Adapter)

	opts := bridge.Options{
		DiscoveryPrefix: cfg.Bridge.DiscoveryPrefix,
		UpdateInterval:  cfg.GetUpdateInterval(),
		RetryInterval:   cfg.GetRetryInterval(),
		Logger:          log.With("component", "bridge"),
	}
	if telemetry != nil {
		opts.RecordAvailability = telemetry.WriteAvailability
	}

	br := bridge.New(&busDialer{cfg: cfg.MQTT, logger: log.With("component", "mqtt")}, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.Run(gctx) })
	g.Go(func() error {
		return runScanner(gctx, controller, br, cfg, telemetry, log.With("component", "scanner"))
	})

	err = g.Wait()
	log.Info("SUTA bridge stopped")
	return err
}

// loadConfig resolves the full configuration surface: defaults, then the
// optional YAML file, then environment variables, then flags.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("sutabridge", flag.ContinueOnError)

	configPath := fs.String("config", os.Getenv("SUTA_BRIDGE_CONFIG"), "path to YAML config file (optional)")
	broker := fs.String("broker", "", "MQTT broker host")
	port := fs.Int("port", 0, "MQTT broker port")
	username := fs.String("username", "", "MQTT username")
	password := fs.String("password", "", "MQTT password")
	updateInterval := fs.Int("update-interval", 0, "state refresh interval in seconds")
	discoveryPrefix := fs.String("discovery-prefix", "", "discovery topic prefix")
	adapter := fs.String("adapter", "", "bluetooth adapter, like hci0")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Flags set on the command line win over file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker.Host = *broker
		case "port":
			cfg.MQTT.Broker.Port = *port
		case "username":
			cfg.MQTT.Auth.Username = *username
		case "password":
			cfg.MQTT.Auth.Password = *password
		case "update-interval":
			cfg.Bridge.UpdateInterval = *updateInterval
		case "discovery-prefix":
			cfg.Bridge.DiscoveryPrefix = *discoveryPrefix
		case "adapter":
			cfg.BLE.Adapter = *adapter
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

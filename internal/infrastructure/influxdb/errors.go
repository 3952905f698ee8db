package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrDisabled indicates telemetry is disabled in the configuration.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed indicates the initial connection could not be
	// established.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

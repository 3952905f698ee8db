// Package influxdb records bed telemetry in InfluxDB v2.
//
// Two measurements are written: bed_position (head and feet percent,
// tagged by address and name) and bed_availability (online flag). Writes
// are batched and asynchronous so the callers in the convergence loop and
// the device lifecycle never block on the time series database.
//
// Telemetry is optional. When disabled in configuration, Connect returns
// ErrDisabled and callers run without a client; the write methods accept a
// nil receiver so call sites need no guards.
package influxdb

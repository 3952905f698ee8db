package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Measurement names.
const (
	measurementPosition     = "bed_position"
	measurementAvailability = "bed_availability"
)

// WritePosition records the head and feet positions of a bed in percent.
// The write is asynchronous; failures surface via the error callback.
func (c *Client) WritePosition(address, name string, headPct, feetPct int) {
	if c == nil {
		return
	}

	point := influxdb2.NewPoint(
		measurementPosition,
		map[string]string{
			"address": address,
			"name":    name,
		},
		map[string]interface{}{
			"head": headPct,
			"feet": feetPct,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAvailability records a bed going online or offline.
func (c *Client) WriteAvailability(address, name string, online bool) {
	if c == nil {
		return
	}

	point := influxdb2.NewPoint(
		measurementAvailability,
		map[string]string{
			"address": address,
			"name":    name,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

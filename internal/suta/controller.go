package suta

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// advertised GATT identifiers of SUTA bed controllers.
var (
	bedServiceUUID = bluetooth.New16BitUUID(0xFFE5)
	bedCommandUUID = bluetooth.New16BitUUID(0xFFE9)
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller owns the BLE adapter and discovers bed frames.
type Controller struct {
	adapter *bluetooth.Adapter
	logger  Logger
}

// NewController enables the BLE adapter. An empty adapterID selects the
// platform default (hci0 on Linux).
func NewController(adapterID string) (*Controller, error) {
	adapter := bluetooth.DefaultAdapter
	if adapterID != "" {
		adapter = bluetooth.NewAdapter(adapterID)
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable %q: %w", ErrAdapter, adapterID, err)
	}

	return &Controller{
		adapter: adapter,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger. Pass nil to disable logging.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Scan streams discovered bed frames to the callback until the context
// is cancelled. The same bed may be reported more than once; callers
// deduplicate by address.
func (c *Controller) Scan(ctx context.Context, found func(bed *Bed)) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = c.adapter.StopScan()
	}()
	defer close(stop)

	err := c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(bedServiceUUID) {
			return
		}

		name := result.LocalName()
		if name == "" {
			return
		}

		c.logger.Debug("bed advertisement",
			"address", result.Address.String(),
			"name", name,
			"rssi", result.RSSI)

		found(newBed(c.adapter, result.Address, name, c.logger))
	})
	if err != nil {
		return fmt.Errorf("%w: scan: %w", ErrAdapter, err)
	}

	return ctx.Err()
}

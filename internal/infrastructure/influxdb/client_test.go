package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ergotech/suta-bridge/internal/infrastructure/config"
)

// testConfig returns an enabled telemetry configuration.
func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:8086",
		Token:   "suta-dev-token",
		Org:     "suta",
		Bucket:  "telemetry",
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachableServer(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(context.Background(), cfg)
	if err == nil {
		t.Fatal("Connect() expected error for unreachable server")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCloseUninitialised(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestIsConnectedInitialState(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("IsConnected() = true for uninitialised client")
	}
}

// A nil telemetry client is how the bridge runs with telemetry disabled;
// writes through it must be no-ops, not panics.
func TestWritesOnNilClient(t *testing.T) {
	var c *Client

	c.WritePosition("AA:BB:CC:DD:EE:FF", "Test Bed", 51, 0)
	c.WriteAvailability("AA:BB:CC:DD:EE:FF", "Test Bed", true)
}

func TestWriteErrorsReachCallback(t *testing.T) {
	c := &Client{}

	received := make(chan error, 1)
	c.SetOnError(func(err error) {
		select {
		case received <- err:
		default:
		}
	})

	errs := make(chan error, 1)
	go c.handleWriteErrors(errs)

	errs <- errors.New("write rejected")
	close(errs)

	select {
	case err := <-received:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("write error never reached callback")
	}
}

// Errors arriving before a callback is registered are dropped without
// blocking the forwarding loop.
func TestWriteErrorsWithoutCallback(t *testing.T) {
	c := &Client{}

	errs := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		c.handleWriteErrors(errs)
		close(done)
	}()

	errs <- errors.New("write rejected")
	close(errs)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarding loop never drained")
	}
}

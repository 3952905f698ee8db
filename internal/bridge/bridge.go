package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ergotech/suta-bridge/internal/device"
)

// Bridge availability topic and payloads, used as the connection will so
// the hub sees the whole bridge drop when the process dies.
const (
	AvailabilityTopic = device.Manufacturer + "/bridge/state"
	PayloadOnline     = "online"
	PayloadOffline    = "offline"
)

// Default option values.
const (
	defaultDiscoveryPrefix = "homeassistant"
	defaultUpdateInterval  = 30 * time.Second
	defaultRetryInterval   = time.Second
)

// Bus is the publish/subscribe surface one live session drives.
//
// Implementations must wrap connection and I/O failures with
// ErrTransport; the supervisor decides recovery by that mark alone.
type Bus interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, handler func(msg Message)) error
	Unsubscribe(topic string) error
}

// Conn is one live bus connection. Lost delivers at most one error when
// the transport drops out from under the session.
type Conn interface {
	Bus
	Lost() <-chan error
	Close()
}

// Dialer establishes bus connections on behalf of the supervisor, one
// per session.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Options configures a Bridge.
type Options struct {
	// DiscoveryPrefix is the topic prefix the hub watches for entity
	// configs. Defaults to "homeassistant".
	DiscoveryPrefix string

	// UpdateInterval is how often tracked device state is re-published.
	UpdateInterval time.Duration

	// RetryInterval is the fixed backoff between session restarts after
	// a transport failure.
	RetryInterval time.Duration

	// Logger for bridge events. Nil disables logging.
	Logger Logger

	// RecordAvailability forwards device online/offline transitions to
	// telemetry. Nil disables recording.
	RecordAvailability func(address, name string, online bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge is the device bridge engine: it owns the registry, supervises
// bus sessions and exposes the staging entry points scanners and device
// handlers drive.
//
// Device registrations survive session restarts: the registry carries
// them across and every device is re-announced on the fresh connection.
type Bridge struct {
	dialer   Dialer
	registry *Registry
	opts     Options
	logger   Logger

	knownMu sync.RWMutex
	known   map[string]struct{}
}

// New creates a Bridge. Zero option fields take defaults.
func New(dialer Dialer, opts Options) *Bridge {
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaultUpdateInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Bridge{
		dialer:   dialer,
		registry: NewRegistry(),
		opts:     opts,
		logger:   logger,
		known:    make(map[string]struct{}),
	}
}

// AddTracked stages a device straight into the tracked set. Used for
// known devices reconnecting after a bridge restart.
func (b *Bridge) AddTracked(ctx context.Context, d device.Device) error {
	return b.registry.StageTrackedAdd(ctx, d)
}

// AddUnpaired stages a freshly discovered device as a pairing offer.
func (b *Bridge) AddUnpaired(ctx context.Context, d device.Device) error {
	return b.registry.StageUnpairedAdd(ctx, d)
}

// RemoveTracked stages a tracked device for removal.
func (b *Bridge) RemoveTracked(ctx context.Context, d device.Device) error {
	return b.registry.StageTrackedRemove(ctx, d)
}

// RemoveUnpaired stages an unpaired device for removal.
func (b *Bridge) RemoveUnpaired(ctx context.Context, d device.Device) error {
	return b.registry.StageUnpairedRemove(ctx, d)
}

// Has reports whether the bridge already handles the address in any
// role, staged or settled.
func (b *Bridge) Has(address string) bool {
	return b.registry.Has(address)
}

// IsKnown reports whether the address was learned from retained
// discovery configs, meaning this bridge paired it before.
func (b *Bridge) IsKnown(address string) bool {
	b.knownMu.RLock()
	defer b.knownMu.RUnlock()
	_, ok := b.known[address]
	return ok
}

// learnKnown is the discovery-prefix subscription callback. Retained
// configs carrying our manufacturer contribute their address to the
// known set, which is how previously paired beds are recognised across
// bridge restarts.
func (b *Bridge) learnKnown(msg Message) {
	address, ok := knownDeviceAddress(msg, device.Manufacturer)
	if !ok {
		return
	}

	b.knownMu.Lock()
	_, seen := b.known[address]
	b.known[address] = struct{}{}
	b.knownMu.Unlock()

	if !seen {
		b.logger.Info("recognised previously paired device", "address", address)
	}
}

// Run supervises bus sessions until the context is cancelled. Transport
// failures restart the session after the fixed retry interval; any other
// error is fatal and returned.
func (b *Bridge) Run(ctx context.Context) error {
	operation := func() error {
		err := b.session(ctx)
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		case IsTransport(err):
			b.logger.Warn("session lost, retrying",
				"error", err,
				"retry_interval", b.opts.RetryInterval)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(b.opts.RetryInterval), ctx)
	err := backoff.Retry(operation, policy)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// session runs one full bus session: dial, announce, re-stage every
// registered device, then run the engine tasks as a unit until one of
// them fails or the context is cancelled.
func (b *Bridge) session(ctx context.Context) error {
	conn, err := b.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.Publish(AvailabilityTopic, []byte(PayloadOnline), true); err != nil {
		return fmt.Errorf("announce bridge: %w", err)
	}

	pub := newPublisher(conn, b.logger)
	rt := newRouter(b.registry, b.logger)
	lc := newLifecycle(b.registry, conn, b.opts.DiscoveryPrefix, pub, rt.handle, b.logger)
	lc.recordAvailability = b.opts.RecordAvailability

	if err := conn.Subscribe(b.opts.DiscoveryPrefix+"/#", b.learnKnown); err != nil {
		return fmt.Errorf("subscribe discovery: %w", err)
	}

	// Subscriptions and announcements died with the previous
	// connection; push every registered device back through the
	// lifecycle so the new session rebuilds them.
	b.registry.RestageAll()

	b.logger.Info("session established")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lc.run(gctx) })
	g.Go(func() error { return rt.run(gctx) })
	g.Go(func() error { return pub.run(gctx) })
	g.Go(func() error { return b.refresh(gctx, pub) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-conn.Lost():
			return fmt.Errorf("connection lost: %w", err)
		}
	})

	err = g.Wait()
	b.teardown(conn)
	return err
}

// refresh re-publishes tracked device state every update interval so the
// hub recovers from missed updates.
func (b *Bridge) refresh(ctx context.Context, pub *publisher) error {
	ticker := time.NewTicker(b.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, d := range b.registry.Tracked() {
				msg, err := d.StateUpdate(true)
				if err != nil {
					b.logger.Error("state update failed", "address", d.Address(), "error", err)
					continue
				}
				pub.enqueue(msg)
			}
		}
	}
}

// teardown best-effort marks every device and the bridge itself offline
// before the session is abandoned. The connection may already be dead;
// errors are deliberately ignored.
func (b *Bridge) teardown(conn Conn) {
	for _, d := range b.registry.Tracked() {
		msg, err := d.StateUpdate(false)
		if err != nil {
			continue
		}
		_ = conn.Publish(msg.Topic, msg.Payload, msg.Retain)
	}

	for _, d := range b.registry.Unpaired() {
		for _, msg := range d.UnpairedEntities(b.opts.DiscoveryPrefix) {
			_ = conn.Publish(msg.Topic, nil, msg.Retain)
		}
	}

	_ = conn.Publish(AvailabilityTopic, []byte(PayloadOffline), true)
}

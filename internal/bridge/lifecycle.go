package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ergotech/suta-bridge/internal/device"
)

// lifecycle applies staged registry changes in batches. It is the single
// consumer of the registry's new-work signal, which guarantees at most
// one mutation pass is ever in flight.
//
// It also owns the per-device convergence tasks: one goroutine per
// tracked device, started on promotion and cancelled on removal or
// session end.
type lifecycle struct {
	registry  *Registry
	bus       Bus
	prefix    string
	publisher *publisher
	inbound   func(msg Message)
	logger    Logger

	// recordAvailability forwards online/offline transitions to
	// telemetry. Nil disables recording.
	recordAvailability func(address, name string, online bool)

	tasksMu sync.Mutex
	tasks   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newLifecycle(registry *Registry, bus Bus, prefix string, pub *publisher, inbound func(Message), logger Logger) *lifecycle {
	return &lifecycle{
		registry:  registry,
		bus:       bus,
		prefix:    prefix,
		publisher: pub,
		inbound:   inbound,
		logger:    logger,
		tasks:     make(map[string]context.CancelFunc),
	}
}

// commandFilter is the subscription filter covering every control of one
// device.
func commandFilter(d device.Device) string {
	return d.TopicRoot() + "/+/set"
}

// run consumes new-work signals until cancellation or a transport
// failure. Device tasks are stopped before returning so a dead session
// never leaves convergence loops issuing moves.
func (l *lifecycle) run(ctx context.Context) error {
	defer l.stopAllTasks()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.registry.newWork:
		}

		if err := l.drain(ctx); err != nil {
			return err
		}
	}
}

// drain applies one batch of staged changes in fixed order: unpaired
// adds, unpaired removes, tracked adds, tracked removes. The registry is
// closed to producers for the whole pass.
func (l *lifecycle) drain(ctx context.Context) error {
	staged := l.registry.beginPass()
	defer l.registry.endPass()

	if staged.empty() {
		return nil
	}

	for _, d := range staged.unpairedAdd {
		if err := l.addUnpaired(d); err != nil {
			return err
		}
	}
	for _, d := range staged.unpairedRemove {
		if err := l.removeUnpaired(d); err != nil {
			return err
		}
	}
	for _, d := range staged.trackedAdd {
		if err := l.addTracked(ctx, d); err != nil {
			return err
		}
	}
	for _, d := range staged.trackedRemove {
		if err := l.removeTracked(d); err != nil {
			return err
		}
	}

	return nil
}

func (l *lifecycle) addUnpaired(d device.Device) error {
	if err := l.bus.Subscribe(commandFilter(d), l.inbound); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.Address(), err)
	}

	for _, msg := range d.UnpairedEntities(l.prefix) {
		if err := l.bus.Publish(msg.Topic, msg.Payload, msg.Retain); err != nil {
			return fmt.Errorf("announce unpaired %s: %w", d.Address(), err)
		}
	}

	l.registry.commitUnpairedAdd(d)
	l.logger.Info("device discovered, pairing offered", "address", d.Address(), "name", d.Name())
	return nil
}

func (l *lifecycle) removeUnpaired(d device.Device) error {
	l.registry.commitUnpairedRemove(d.Address())

	if err := l.bus.Unsubscribe(commandFilter(d)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", d.Address(), err)
	}
	if err := l.retract(d.UnpairedEntities(l.prefix)); err != nil {
		return fmt.Errorf("retract unpaired %s: %w", d.Address(), err)
	}

	l.logger.Info("unpaired device removed", "address", d.Address())
	return nil
}

func (l *lifecycle) addTracked(ctx context.Context, d device.Device) error {
	if err := l.bus.Subscribe(commandFilter(d), l.inbound); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.Address(), err)
	}

	for _, msg := range d.DiscoveryEntities(l.prefix) {
		if err := l.bus.Publish(msg.Topic, msg.Payload, msg.Retain); err != nil {
			return fmt.Errorf("announce tracked %s: %w", d.Address(), err)
		}
	}

	l.registry.commitTrackedAdd(d)
	l.enqueueState(d, true)
	l.startTask(ctx, d)

	if l.recordAvailability != nil {
		l.recordAvailability(d.Address(), d.Name(), true)
	}

	l.logger.Info("device tracked", "address", d.Address(), "name", d.Name())
	return nil
}

func (l *lifecycle) removeTracked(d device.Device) error {
	// The final offline update and the discovery retraction both go
	// through the outgoing queue. A queued-but-undrained online update
	// for the same device would otherwise overtake a direct offline
	// publish and leave the retained state topic saying online forever.
	// FIFO order through one queue also keeps the offline ahead of the
	// retraction.
	l.enqueueState(d, false)

	l.stopTask(d.Address())
	l.registry.commitTrackedRemove(d.Address())

	if err := l.bus.Unsubscribe(commandFilter(d)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", d.Address(), err)
	}
	for _, msg := range d.DiscoveryEntities(l.prefix) {
		l.publisher.enqueue(device.Message{Topic: msg.Topic, Retain: msg.Retain})
	}

	if l.recordAvailability != nil {
		l.recordAvailability(d.Address(), d.Name(), false)
	}

	l.logger.Info("tracked device removed", "address", d.Address())
	return nil
}

// retract publishes an empty payload to each entity's config topic. The
// retain flag mirrors the original config so retained configs are
// actually cleared from the broker.
func (l *lifecycle) retract(entities []device.Message) error {
	for _, msg := range entities {
		if err := l.bus.Publish(msg.Topic, nil, msg.Retain); err != nil {
			return err
		}
	}
	return nil
}

// enqueueState queues a state update through the outgoing publisher.
func (l *lifecycle) enqueueState(d device.Device, online bool) {
	msg, err := d.StateUpdate(online)
	if err != nil {
		l.logger.Error("state update failed", "address", d.Address(), "error", err)
		return
	}
	l.publisher.enqueue(msg)
}

// startTask launches the device's convergence task bound to the session
// context.
func (l *lifecycle) startTask(ctx context.Context, d device.Device) {
	taskCtx, cancel := context.WithCancel(ctx)

	l.tasksMu.Lock()
	if _, exists := l.tasks[d.Address()]; exists {
		l.tasksMu.Unlock()
		cancel()
		return
	}
	l.tasks[d.Address()] = cancel
	l.tasksMu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := d.Run(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("device task stopped", "address", d.Address(), "error", err)
		}
	}()
}

func (l *lifecycle) stopTask(address string) {
	l.tasksMu.Lock()
	cancel, ok := l.tasks[address]
	if ok {
		delete(l.tasks, address)
	}
	l.tasksMu.Unlock()

	if ok {
		cancel()
	}
}

// stopAllTasks cancels every device task and waits for them to exit.
func (l *lifecycle) stopAllTasks() {
	l.tasksMu.Lock()
	for address, cancel := range l.tasks {
		cancel()
		delete(l.tasks, address)
	}
	l.tasksMu.Unlock()

	l.wg.Wait()
}

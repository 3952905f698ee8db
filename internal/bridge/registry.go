package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/ergotech/suta-bridge/internal/device"
)

// Registry tracks which devices are paired (tracked) and which are
// visible but awaiting pairing (unpaired), keyed by hardware address.
//
// Mutations never touch the live maps directly. Producers stage changes
// into incoming/outgoing containers and the lifecycle processor applies
// them in batches, so command routing never observes a partially-applied
// registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Staging blocks while a lifecycle pass is in flight; the pass owns
//     the staged containers exclusively until it completes.
type Registry struct {
	mu sync.Mutex

	tracked  map[string]device.Device
	unpaired map[string]device.Device

	stagedTrackedAdd     map[string]device.Device
	stagedTrackedRemove  map[string]device.Device
	stagedUnpairedAdd    map[string]device.Device
	stagedUnpairedRemove map[string]device.Device

	// newWork carries the "staged changes pending" signal to the
	// lifecycle processor. One slot: staging bursts coalesce.
	newWork chan struct{}

	// gate is closed while the registry is idle and replaced with an
	// open channel for the duration of a lifecycle pass. Producers wait
	// on it before staging.
	gate   chan struct{}
	gateMu sync.Mutex
}

var _ device.Registrar = (*Registry)(nil)

// NewRegistry returns an empty idle registry.
func NewRegistry() *Registry {
	gate := make(chan struct{})
	close(gate)

	return &Registry{
		tracked:              make(map[string]device.Device),
		unpaired:             make(map[string]device.Device),
		stagedTrackedAdd:     make(map[string]device.Device),
		stagedTrackedRemove:  make(map[string]device.Device),
		stagedUnpairedAdd:    make(map[string]device.Device),
		stagedUnpairedRemove: make(map[string]device.Device),
		newWork:              make(chan struct{}, 1),
		gate:                 gate,
	}
}

// waitIdle blocks until no lifecycle pass is in flight.
func (r *Registry) waitIdle(ctx context.Context) error {
	r.gateMu.Lock()
	gate := r.gate
	r.gateMu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signal wakes the lifecycle processor without blocking.
func (r *Registry) signal() {
	select {
	case r.newWork <- struct{}{}:
	default:
	}
}

func (r *Registry) stage(ctx context.Context, container func() map[string]device.Device, d device.Device) error {
	if err := r.waitIdle(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	container()[d.Address()] = d
	r.mu.Unlock()

	r.signal()
	return nil
}

// StageTrackedAdd queues a device for promotion into the tracked set.
func (r *Registry) StageTrackedAdd(ctx context.Context, d device.Device) error {
	return r.stage(ctx, func() map[string]device.Device { return r.stagedTrackedAdd }, d)
}

// StageTrackedRemove queues a tracked device for removal.
func (r *Registry) StageTrackedRemove(ctx context.Context, d device.Device) error {
	return r.stage(ctx, func() map[string]device.Device { return r.stagedTrackedRemove }, d)
}

// StageUnpairedAdd queues a device for the unpaired set.
func (r *Registry) StageUnpairedAdd(ctx context.Context, d device.Device) error {
	return r.stage(ctx, func() map[string]device.Device { return r.stagedUnpairedAdd }, d)
}

// StageUnpairedRemove queues an unpaired device for removal.
func (r *Registry) StageUnpairedRemove(ctx context.Context, d device.Device) error {
	return r.stage(ctx, func() map[string]device.Device { return r.stagedUnpairedRemove }, d)
}

// stagedChanges is one lifecycle pass's exclusive snapshot of the staged
// containers.
type stagedChanges struct {
	trackedAdd     map[string]device.Device
	trackedRemove  map[string]device.Device
	unpairedAdd    map[string]device.Device
	unpairedRemove map[string]device.Device
}

func (s stagedChanges) empty() bool {
	return len(s.trackedAdd) == 0 && len(s.trackedRemove) == 0 &&
		len(s.unpairedAdd) == 0 && len(s.unpairedRemove) == 0
}

// beginPass closes the registry to producers and hands the caller the
// staged containers, leaving fresh empty ones behind. Only the lifecycle
// processor calls this, so at most one pass is ever in flight.
func (r *Registry) beginPass() stagedChanges {
	r.gateMu.Lock()
	r.gate = make(chan struct{})
	r.gateMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	staged := stagedChanges{
		trackedAdd:     r.stagedTrackedAdd,
		trackedRemove:  r.stagedTrackedRemove,
		unpairedAdd:    r.stagedUnpairedAdd,
		unpairedRemove: r.stagedUnpairedRemove,
	}

	r.stagedTrackedAdd = make(map[string]device.Device)
	r.stagedTrackedRemove = make(map[string]device.Device)
	r.stagedUnpairedAdd = make(map[string]device.Device)
	r.stagedUnpairedRemove = make(map[string]device.Device)

	return staged
}

// endPass reopens the registry to waiting producers.
func (r *Registry) endPass() {
	r.gateMu.Lock()
	close(r.gate)
	r.gateMu.Unlock()
}

// commitTrackedAdd moves a device into the tracked map.
func (r *Registry) commitTrackedAdd(d device.Device) {
	r.mu.Lock()
	r.tracked[d.Address()] = d
	r.mu.Unlock()
}

// commitTrackedRemove drops a device from the tracked map.
func (r *Registry) commitTrackedRemove(address string) {
	r.mu.Lock()
	delete(r.tracked, address)
	r.mu.Unlock()
}

// commitUnpairedAdd moves a device into the unpaired map.
func (r *Registry) commitUnpairedAdd(d device.Device) {
	r.mu.Lock()
	r.unpaired[d.Address()] = d
	r.mu.Unlock()
}

// commitUnpairedRemove drops a device from the unpaired map.
func (r *Registry) commitUnpairedRemove(address string) {
	r.mu.Lock()
	delete(r.unpaired, address)
	r.mu.Unlock()
}

// Match returns every registered device whose topic root prefixes the
// given command topic. Exactly one match is the healthy case.
func (r *Registry) Match(topic string) []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []device.Device
	for _, d := range r.tracked {
		if strings.HasPrefix(topic, d.TopicRoot()+"/") {
			matches = append(matches, d)
		}
	}
	for _, d := range r.unpaired {
		if strings.HasPrefix(topic, d.TopicRoot()+"/") {
			matches = append(matches, d)
		}
	}
	return matches
}

// Has reports whether the address is registered or staged in any role.
// Scanners use it to skip devices the bridge already handles.
func (r *Registry) Has(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[address]; ok {
		return true
	}
	if _, ok := r.unpaired[address]; ok {
		return true
	}
	if _, ok := r.stagedTrackedAdd[address]; ok {
		return true
	}
	if _, ok := r.stagedUnpairedAdd[address]; ok {
		return true
	}
	return false
}

// Tracked returns a snapshot of the tracked devices.
func (r *Registry) Tracked() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]device.Device, 0, len(r.tracked))
	for _, d := range r.tracked {
		devices = append(devices, d)
	}
	return devices
}

// Unpaired returns a snapshot of the unpaired devices.
func (r *Registry) Unpaired() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]device.Device, 0, len(r.unpaired))
	for _, d := range r.unpaired {
		devices = append(devices, d)
	}
	return devices
}

// RestageAll moves every registered device back into the staged add
// containers. A new session calls this so the lifecycle processor
// rebuilds subscriptions and re-announces every device on the fresh
// connection.
func (r *Registry) RestageAll() {
	r.mu.Lock()
	for address, d := range r.tracked {
		r.stagedTrackedAdd[address] = d
		delete(r.tracked, address)
	}
	for address, d := range r.unpaired {
		r.stagedUnpairedAdd[address] = d
		delete(r.unpaired, address)
	}
	r.mu.Unlock()

	r.signal()
}

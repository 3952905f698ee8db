package suta

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Command frames of the SUTA controller protocol. Each write triggers
// one discrete motor pulse; the controller sends nothing back.
var (
	cmdRaiseHead = []byte{0xe5, 0xfe, 0x16, 0x01, 0x00, 0x00, 0x00, 0xe8}
	cmdLowerHead = []byte{0xe5, 0xfe, 0x16, 0x02, 0x00, 0x00, 0x00, 0xe7}
	cmdRaiseFeet = []byte{0xe5, 0xfe, 0x16, 0x04, 0x00, 0x00, 0x00, 0xe5}
	cmdLowerFeet = []byte{0xe5, 0xfe, 0x16, 0x08, 0x00, 0x00, 0x00, 0xe1}
	cmdFlat      = []byte{0xe5, 0xfe, 0x16, 0x00, 0x00, 0x00, 0x08, 0xe1}
	cmdLounge    = []byte{0xe5, 0xfe, 0x16, 0x00, 0x00, 0x00, 0x10, 0xd9}
)

// Bed is the hardware handle for one SUTA bed frame. The GATT connection
// is established lazily on the first command and re-established after a
// drop.
//
// Thread Safety:
//   - All methods are safe for concurrent use; commands are serialised
//     on the single command characteristic.
type Bed struct {
	adapter *bluetooth.Adapter
	addr    bluetooth.Address
	name    string
	logger  Logger

	mu        sync.Mutex
	dev       bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	connected bool
}

func newBed(adapter *bluetooth.Adapter, addr bluetooth.Address, name string, logger Logger) *Bed {
	return &Bed{
		adapter: adapter,
		addr:    addr,
		name:    name,
		logger:  logger,
	}
}

// Address returns the stable hardware address.
func (b *Bed) Address() string {
	return b.addr.String()
}

// Name returns the advertised device name.
func (b *Bed) Name() string {
	return b.name
}

// Connect establishes the GATT connection and resolves the command
// characteristic. Safe to call when already connected.
func (b *Bed) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Bed) connectLocked(ctx context.Context) error {
	if b.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := b.adapter.Connect(b.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrConnectFailed, b.Address(), err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{bedServiceUUID})
	if err != nil || len(services) == 0 {
		_ = dev.Disconnect()
		return fmt.Errorf("%w: discover service on %s: %w", ErrConnectFailed, b.Address(), err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bedCommandUUID})
	if err != nil || len(chars) == 0 {
		_ = dev.Disconnect()
		return fmt.Errorf("%w: discover characteristic on %s: %w", ErrConnectFailed, b.Address(), err)
	}

	b.dev = dev
	b.char = chars[0]
	b.connected = true
	b.logger.Info("bed connected", "address", b.Address(), "name", b.name)
	return nil
}

// Disconnect drops the GATT connection. Commands after a disconnect
// reconnect transparently.
func (b *Bed) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}
	b.connected = false
	return b.dev.Disconnect()
}

// write sends one command frame, connecting first if needed. A failed
// write tears the connection down so the next command redials rather
// than writing into a dead handle.
func (b *Bed) write(ctx context.Context, cmd []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connectLocked(ctx); err != nil {
		return err
	}

	if _, err := b.char.WriteWithoutResponse(cmd); err != nil {
		b.connected = false
		_ = b.dev.Disconnect()
		return fmt.Errorf("%w: write to %s: %w", ErrWriteFailed, b.Address(), err)
	}
	return nil
}

// RaiseHead issues one discrete raise pulse to the head motor.
func (b *Bed) RaiseHead(ctx context.Context) error { return b.write(ctx, cmdRaiseHead) }

// LowerHead issues one discrete lower pulse to the head motor.
func (b *Bed) LowerHead(ctx context.Context) error { return b.write(ctx, cmdLowerHead) }

// RaiseFeet issues one discrete raise pulse to the feet motor.
func (b *Bed) RaiseFeet(ctx context.Context) error { return b.write(ctx, cmdRaiseFeet) }

// LowerFeet issues one discrete lower pulse to the feet motor.
func (b *Bed) LowerFeet(ctx context.Context) error { return b.write(ctx, cmdLowerFeet) }

// Flat drives both motors to the flat preset.
func (b *Bed) Flat(ctx context.Context) error { return b.write(ctx, cmdFlat) }

// Lounge drives both motors to the lounge preset.
func (b *Bed) Lounge(ctx context.Context) error { return b.write(ctx, cmdLounge) }

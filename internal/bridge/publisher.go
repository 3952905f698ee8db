package bridge

import (
	"context"
	"fmt"

	"github.com/ergotech/suta-bridge/internal/device"
)

// outgoingQueueSize bounds the state-update queue. Updates are small and
// per-device, so a modest buffer absorbs bursts from lifecycle passes.
const outgoingQueueSize = 64

// publisher drains queued state updates onto the bus in FIFO order.
// Serialising publishes through one task keeps updates for the same
// device ordered.
type publisher struct {
	bus    Bus
	queue  chan device.Message
	logger Logger
}

func newPublisher(bus Bus, logger Logger) *publisher {
	return &publisher{
		bus:    bus,
		queue:  make(chan device.Message, outgoingQueueSize),
		logger: logger,
	}
}

// enqueue queues a message without blocking. A full queue drops the
// update with a warning; the periodic refresh re-publishes state soon
// after, so a dropped update is not lost for long.
func (p *publisher) enqueue(msg device.Message) {
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("outgoing queue full, dropping update", "topic", msg.Topic)
	}
}

// run publishes queued messages until cancellation or a transport
// failure. Non-transport publish errors are logged and skipped.
func (p *publisher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.queue:
			if err := p.bus.Publish(msg.Topic, msg.Payload, msg.Retain); err != nil {
				if IsTransport(err) {
					return fmt.Errorf("publish %s: %w", msg.Topic, err)
				}
				p.logger.Error("publish failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}

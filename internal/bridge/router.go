package bridge

import (
	"context"
	"encoding/json"
)

// inboundQueueSize bounds the command queue between the bus callback and
// the router loop. Commands are human-initiated, so bursts are tiny;
// overflow drops the command with a warning rather than blocking the bus
// client's delivery goroutine.
const inboundQueueSize = 64

// Message is one inbound bus message.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// router dispatches inbound commands to the device whose topic root
// prefixes the command topic.
//
// Routing errors (no match, multiple matches) and device handler errors
// are reported and the command dropped; they never stop the loop. Only
// cancellation ends it.
type router struct {
	registry *Registry
	inbound  chan Message
	logger   Logger
}

func newRouter(registry *Registry, logger Logger) *router {
	return &router{
		registry: registry,
		inbound:  make(chan Message, inboundQueueSize),
		logger:   logger,
	}
}

// handle is the bus subscription callback. It must not block: delivery
// happens on the bus client's goroutine.
func (rt *router) handle(msg Message) {
	select {
	case rt.inbound <- msg:
	default:
		rt.logger.Warn("inbound queue full, dropping command", "topic", msg.Topic)
	}
}

// run dispatches queued commands until cancellation.
func (rt *router) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-rt.inbound:
			rt.route(ctx, msg)
		}
	}
}

func (rt *router) route(ctx context.Context, msg Message) {
	matches := rt.registry.Match(msg.Topic)

	switch len(matches) {
	case 0:
		rt.logger.Error("command dropped", "topic", msg.Topic, "error", ErrNoMatch)
	case 1:
		if err := matches[0].HandleCommand(ctx, rt.registry, msg.Topic, string(msg.Payload)); err != nil {
			rt.logger.Error("command failed",
				"topic", msg.Topic,
				"address", matches[0].Address(),
				"error", err)
		}
	default:
		// Topic roots embed unique addresses; two matches mean the
		// registry is corrupt.
		rt.logger.Error("command dropped", "topic", msg.Topic, "matches", len(matches), "error", ErrAmbiguousMatch)
	}
}

// discoveryEnvelope is the fragment of a discovery config the bridge
// reads back to recognise its own devices.
type discoveryEnvelope struct {
	Device struct {
		Manufacturer string      `json:"manufacturer"`
		Connections  [][2]string `json:"connections"`
	} `json:"device"`
}

// knownDeviceAddress extracts the hardware address from a retained
// discovery config previously published by this bridge. Returns false
// for foreign or malformed payloads.
func knownDeviceAddress(msg Message, manufacturer string) (string, bool) {
	if !msg.Retained || len(msg.Payload) == 0 {
		return "", false
	}

	var envelope discoveryEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return "", false
	}
	if envelope.Device.Manufacturer != manufacturer {
		return "", false
	}
	if len(envelope.Device.Connections) == 0 {
		return "", false
	}

	address := envelope.Device.Connections[0][1]
	if address == "" {
		return "", false
	}
	return address, true
}

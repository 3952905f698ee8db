package device

import (
	"context"
	"strings"
)

// Manufacturer identifies this bridge's devices in discovery payloads and
// topic roots. It is also how retained discovery messages on the bus are
// recognised as ours after a restart.
const Manufacturer = "suta"

// Message is a single bus publication produced by a device: a discovery
// config, a discovery retraction (empty payload) or a state update.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// Retraction reports whether the message withdraws a previously published
// discovery config.
func (m Message) Retraction() bool {
	return len(m.Payload) == 0
}

// Registrar stages registry changes on behalf of a device command handler.
// Staging may block until the lifecycle processor finishes an in-flight
// pass, so every method takes a context.
//
// Implemented by bridge.Registry.
type Registrar interface {
	StageTrackedAdd(ctx context.Context, d Device) error
	StageTrackedRemove(ctx context.Context, d Device) error
	StageUnpairedAdd(ctx context.Context, d Device) error
	StageUnpairedRemove(ctx context.Context, d Device) error
}

// Device is one bridged hardware device.
//
// A device moves through two roles: unpaired (visible on the bus with only
// a pairing trigger) and tracked (fully operable, announced as ready).
// The bridge owns role membership; the device owns its hardware handle,
// its topic identity and its entity payloads.
type Device interface {
	// Address is the stable hardware address used as the registry key.
	Address() string

	// Name is the human-readable device name from the hardware.
	Name() string

	// TopicRoot is the prefix of every command and state topic for this
	// device. Command routing matches inbound topics against it.
	TopicRoot() string

	// UnpairedEntities returns the discovery configs published while the
	// device awaits pairing.
	UnpairedEntities(discoveryPrefix string) []Message

	// DiscoveryEntities returns the discovery configs published once the
	// device is tracked.
	DiscoveryEntities(discoveryPrefix string) []Message

	// HandleCommand processes one inbound command addressed to this
	// device. topic is the full command topic, payload the raw text.
	HandleCommand(ctx context.Context, reg Registrar, topic, payload string) error

	// StateUpdate builds the retained state payload reflecting the most
	// recently settled position and the given availability.
	StateUpdate(online bool) (Message, error)

	// Run drives the device's background work (position convergence)
	// until the context is cancelled. It returns the context error on
	// cancellation.
	Run(ctx context.Context) error
}

// Actuator is the hardware side of a bed frame: independent primitive
// moves over the wireless transport. Each call issues exactly one
// discrete command; none of them report resulting position.
type Actuator interface {
	Address() string
	Name() string
	RaiseHead(ctx context.Context) error
	LowerHead(ctx context.Context) error
	RaiseFeet(ctx context.Context) error
	LowerFeet(ctx context.Context) error
	Flat(ctx context.Context) error
	Lounge(ctx context.Context) error
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

// SanitizeID returns the hardware address in a form usable where colons
// are not allowed (topic segments, unique ids).
func SanitizeID(address string) string {
	return strings.ReplaceAll(address, ":", "_")
}

// TopicRoot returns the command/state topic prefix for an address.
func TopicRoot(address string) string {
	return Manufacturer + "/" + SanitizeID(address)
}

// StateTopic returns the retained state topic for an address.
func StateTopic(address string) string {
	return TopicRoot(address) + "/state"
}

package device

import "errors"

// Sentinel errors for device command handling. These are device-level
// faults: the dispatcher reports them and carries on, so one bed's bad
// command never disturbs another bed or the router loop.
var (
	// ErrInvalidPayload indicates a numeric control received a payload
	// that does not parse as a decimal percentage.
	ErrInvalidPayload = errors.New("device: invalid command payload")

	// ErrUnknownCommand indicates a command topic matched this device's
	// topic root but no control it exposes.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrCommandFailed indicates the hardware rejected a primitive move.
	ErrCommandFailed = errors.New("device: command failed")
)

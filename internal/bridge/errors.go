package bridge

import "errors"

// Sentinel errors for the bridge engine.
var (
	// ErrTransport marks a bus transport failure. The connection
	// supervisor recovers these with a full session restart; bus
	// adapters must wrap their connection and I/O failures with it.
	ErrTransport = errors.New("bridge: transport error")

	// ErrNoMatch indicates a command topic matched no registered device.
	// The command is dropped and the router continues.
	ErrNoMatch = errors.New("bridge: no device matches command topic")

	// ErrAmbiguousMatch indicates a command topic matched more than one
	// registered device. Topic roots embed unique hardware addresses, so
	// this points at a registry bug.
	ErrAmbiguousMatch = errors.New("bridge: multiple devices match command topic")
)

// IsTransport reports whether err is a transport failure that the
// connection supervisor should recover by restarting the session.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

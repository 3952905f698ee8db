// Package bridge is the device bridge engine: it links wireless bed
// frames to an MQTT bus using the Home Assistant discovery convention.
//
// # Architecture
//
// Five cooperating tasks run per bus session:
//
//   - The router consumes inbound commands and dispatches each to the
//     one device whose topic root prefixes the command topic.
//   - The lifecycle processor applies staged registry changes in
//     batches: it (un)subscribes command topics, announces or retracts
//     discovery configs and starts or stops device convergence tasks.
//   - The outgoing publisher drains queued state updates in FIFO order.
//   - The refresher re-publishes tracked device state periodically.
//   - The lost watcher turns a dropped connection into a session error.
//
// Registry mutations are staged, never direct: producers (the router
// handling a pairing command, the scanner adding a discovery) wait for
// the registry to be idle, stage their change and signal new work. The
// lifecycle processor is the only consumer of that signal, which
// guarantees at most one mutation pass in flight and keeps command
// routing from ever observing a half-applied registry.
//
// # Failure model
//
// Transport failures (marked ErrTransport by the bus adapter) abort the
// whole session; the supervisor tears it down, best-effort publishes
// offline state and retries after a fixed interval. Device registrations
// survive the restart and are re-announced on the new connection.
// Routing and per-device command errors are logged and dropped without
// disturbing the session.
package bridge

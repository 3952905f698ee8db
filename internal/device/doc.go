// Package device models the bridged hardware devices.
//
// The Device interface is the capability set the bridge engine works
// against: topic identity, discovery payload generation, command handling
// and state-update generation. BedFrame is the concrete variant for SUTA
// motorized bed frames.
//
// # Position model
//
// The bed's motors accept only discrete raise/lower pulses and report
// nothing back. BedFrame keeps a per-axis step count as the open-loop
// integration of every pulse it has issued, maps requested percentages
// onto the step range and converges toward targets one pulse per settle
// interval. Missed pulses (a pulse sent but not executed by the hardware)
// silently desynchronise the stored position from reality; this is an
// accepted limitation of the hardware, not something the model masks.
//
// # Topics
//
// Every topic embeds the hardware address with colons replaced by
// underscores. State lives at suta/<id>/state (retained JSON), commands
// arrive on suta/<id>/<control>/set, and discovery configs are published
// under the configurable discovery prefix.
package device

// Package suta talks to SUTA bed frame controllers over Bluetooth Low
// Energy.
//
// Controller scans for beds by their advertised control service and
// hands out Bed handles. A Bed exposes the controller's six primitive
// moves as independent commands; the protocol is write-only, so no
// position or acknowledgement ever comes back.
//
// Bed satisfies the device.Actuator interface consumed by the bed frame
// device variant.
package suta

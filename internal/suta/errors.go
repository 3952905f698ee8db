package suta

import "errors"

// Sentinel errors for BLE operations.
var (
	// ErrAdapter indicates the BLE adapter could not be enabled or the
	// scan could not start.
	ErrAdapter = errors.New("suta: bluetooth adapter error")

	// ErrConnectFailed indicates the GATT connection or service
	// discovery failed.
	ErrConnectFailed = errors.New("suta: connect failed")

	// ErrWriteFailed indicates a command frame could not be written.
	ErrWriteFailed = errors.New("suta: command write failed")
)

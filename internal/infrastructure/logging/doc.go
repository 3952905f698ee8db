// Package logging provides structured logging for the SUTA bridge.
//
// It wraps log/slog with configuration-driven level, format and output
// selection, plus default fields identifying the service. Components that
// want their own logging interface (to stay import-light and mockable)
// declare a minimal local Logger interface; *logging.Logger satisfies
// those interfaces.
package logging

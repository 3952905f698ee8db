// Package config loads and validates SUTA bridge configuration.
//
// Configuration comes from three layers, each overriding the last:
//
//  1. Hardcoded defaults
//  2. An optional YAML file
//  3. SUTA_BRIDGE_* environment variables
//
// Command-line flags are applied on top by cmd/sutabridge before
// validation. Validation collects every problem before failing so a
// misconfigured deployment is reported in a single pass.
package config

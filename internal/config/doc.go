// Package config loads, normalizes, and validates mediafetch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIAFETCH_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: registry capacity, retry policy, probe targets, and the optional
// history, metrics, Redis, and ntfy integrations.
package config

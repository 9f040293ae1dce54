// Package notifications delivers operator alerts via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether alerts are enabled. Alerter adapts the
// service into a monitor listener for give-up failures.
package notifications

// Package metrics exposes download and session counters to Prometheus.
//
// Collectors live on a dedicated registry rather than the global default so
// tests and embedded daemons never collide.
package metrics

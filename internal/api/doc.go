// Package api defines wire-format types and converters shared by the HTTP
// API and the IPC layer. It translates session, job, and monitor models into
// transport-friendly DTOs so clients never couple to internal types.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds and
// durations are reported in seconds.
package api

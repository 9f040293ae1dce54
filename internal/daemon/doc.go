// Package daemon coordinates the long-running mediafetch process.
//
// It ties the session registry, download manager, monitor, and optional
// archive/metrics sinks into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon runs the periodic maintenance sweep
// and serves the HTTP API; IPC and CLI callers go through the same methods so
// every surface reports identical state.
package daemon

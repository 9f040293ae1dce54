// Package daemonrun wires configuration into a running daemon process: the
// per-run log file, pid file, download stack, HTTP API, and IPC socket.
package daemonrun

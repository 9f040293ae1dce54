// Package ipc exposes daemon control via JSON-RPC over a Unix domain socket.
//
// The CLI dials the socket created by "mediafetch serve" and calls the
// Mediafetch.* methods. Request and response types live in types.go and reuse
// the api DTOs so the socket and the HTTP API report identical shapes.
package ipc

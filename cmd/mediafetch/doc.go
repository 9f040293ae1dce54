// Package main hosts the mediafetch CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, talks to a running
// daemon over its IPC socket for status and session maintenance, and offers a
// few standalone utilities: a one-shot in-process fetch, failure text
// classification, and configuration scaffolding.
//
// Keep this package thin. Behavior lives in the internal packages; commands
// here resolve configuration, dial the daemon, and render output.
package main

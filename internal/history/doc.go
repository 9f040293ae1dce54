// Package history archives finished downloads in a SQLite database.
//
// The archive is an operator record only; live session and job state is never
// rebuilt from it. Recorder plugs into the monitor as a listener.
package history

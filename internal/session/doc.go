// Package session keeps the in-memory table of anonymous download sessions.
//
// The Registry enforces the concurrent-session and per-session job caps,
// owns each session's jobpath.Resolver, and expires idle sessions. Counters
// are updated in short critical sections; expiry hooks and logging run after
// the lock is released.
package session

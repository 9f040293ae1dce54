// Package download executes submitted jobs: it reserves session slots, runs
// the engine on a bounded worker pool, forwards progress to the monitor, and
// performs the waits that retry decisions ask for.
package download

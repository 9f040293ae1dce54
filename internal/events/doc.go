// Package events publishes monitor lifecycle events to Redis pub/sub.
package events

// Package jobpath maps (session, source url) pairs to stable job identifiers
// and derives where each job's files live.
//
// A Resolver belongs to exactly one session. Job ids are UUIDv5 values derived
// from the session id and url, memoized per resolver, so repeated requests
// for the same url land in the same directory while two sessions never share
// an id. DerivePath is pure; creating directories is the caller's job.
package jobpath

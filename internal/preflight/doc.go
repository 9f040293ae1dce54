// Package preflight provides readiness checks for the directories, helper
// binaries, and upstream connectivity mediafetch depends on.
//
// The daemon's /api/health endpoint and the CLI "mediafetch status" command
// both call Run so they report the same list. Connectivity is only checked
// when network checks are enabled in config.
package preflight

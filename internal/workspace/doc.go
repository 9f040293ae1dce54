// Package workspace creates and sizes job directories under the download root
// and removes the trees of expired sessions.
package workspace

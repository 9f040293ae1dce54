// Package engine defines the media fetch contract and its yt-dlp
// implementation.
package engine

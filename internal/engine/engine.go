package engine

import (
	"context"
	"time"

	"mediafetch/internal/jobpath"
)

// Request describes one fetch.
type Request struct {
	URL         string
	Destination string
	Category    jobpath.Category
}

// Progress is a point-in-time transfer report. Zero Total, Speed, or ETA
// means unknown.
type Progress struct {
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        time.Duration
	Title      string
}

// Result summarizes a finished fetch.
type Result struct {
	Success          bool
	BytesTransferred int64
	Elapsed          time.Duration
	OutputPath       string
	Title            string
	Error            string
}

// Engine performs the transfer. Failures carry the tool's diagnostic text so
// the retry classifier can categorize them.
type Engine interface {
	Fetch(ctx context.Context, req Request, onProgress func(Progress)) (Result, error)
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, req Request, onProgress func(Progress)) (Result, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req Request, onProgress func(Progress)) (Result, error) {
	return f(ctx, req, onProgress)
}

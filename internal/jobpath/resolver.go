package jobpath

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultBaseDir is used when no download directory is configured.
const DefaultBaseDir = "./downloads"

// Category selects the subdirectory a job writes into.
type Category string

const (
	CategoryAudio       Category = "audio"
	CategoryVideo       Category = "video"
	CategoryTranscripts Category = "transcripts"
)

// Categories lists the supported job categories.
var Categories = []Category{CategoryAudio, CategoryVideo, CategoryTranscripts}

// ParseCategory validates a category name. Empty input selects audio.
func ParseCategory(value string) (Category, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return CategoryAudio, nil
	}
	for _, c := range Categories {
		if string(c) == trimmed {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (expected audio, video or transcripts)", value)
}

// jobNamespace seeds job id derivation so ids never collide with other
// UUIDv5 users of the URL namespace.
var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mediafetch:job"))

// DeriveJobID returns the deterministic job id for url within sessionID.
func DeriveJobID(sessionID, url string) string {
	return uuid.NewSHA1(jobNamespace, []byte(sessionID+"\x00"+url)).String()
}

// DerivePath returns baseDir/sessionID/jobID/category. It performs no I/O.
func DerivePath(baseDir, sessionID, jobID string, category Category) string {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = DefaultBaseDir
	}
	return filepath.Join(baseDir, sessionID, jobID, string(category))
}

// Resolver memoizes job identities for one session.
type Resolver struct {
	sessionID string
	baseDir   string

	mu    sync.Mutex
	byURL map[string]string
	byID  map[string]string
}

// NewResolver returns an empty resolver for sessionID rooted at baseDir.
func NewResolver(sessionID, baseDir string) *Resolver {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = DefaultBaseDir
	}
	return &Resolver{
		sessionID: sessionID,
		baseDir:   baseDir,
		byURL:     make(map[string]string),
		byID:      make(map[string]string),
	}
}

// SessionID returns the owning session.
func (r *Resolver) SessionID() string { return r.sessionID }

// BaseDir returns the download root.
func (r *Resolver) BaseDir() string { return r.baseDir }

// JobID returns the job id for url, allocating it on first use. Concurrent
// callers for the same url always observe the same id.
func (r *Resolver) JobID(url string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byURL[url]; ok {
		return id
	}
	id := DeriveJobID(r.sessionID, url)
	r.byURL[url] = id
	r.byID[id] = url
	return id
}

// Lookup returns the url a job id was allocated for.
func (r *Resolver) Lookup(jobID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.byID[jobID]
	return url, ok
}

// Path derives the storage path of jobID under this resolver's base dir.
func (r *Resolver) Path(jobID string, category Category) string {
	return DerivePath(r.baseDir, r.sessionID, jobID, category)
}

// SessionDir is the directory holding every job of the session.
func (r *Resolver) SessionDir() string {
	return filepath.Join(r.baseDir, r.sessionID)
}

// Summary describes the identities a resolver has handed out.
type Summary struct {
	SessionID string   `json:"sessionId"`
	JobCount  int      `json:"jobCount"`
	URLs      []string `json:"urls"`
	IDs       []string `json:"ids"`
}

// Summary returns a snapshot of the allocated identities. URLs are sorted
// and IDs[i] belongs to URLs[i].
func (r *Resolver) Summary() Summary {
	r.mu.Lock()
	urls := make([]string, 0, len(r.byURL))
	for url := range r.byURL {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	ids := make([]string, len(urls))
	for i, url := range urls {
		ids[i] = r.byURL[url]
	}
	r.mu.Unlock()

	return Summary{
		SessionID: r.sessionID,
		JobCount:  len(urls),
		URLs:      urls,
		IDs:       ids,
	}
}

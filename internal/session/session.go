package session

import "time"

// Session is one anonymous client's bookkeeping. Counters always satisfy
// CompletedJobs + FailedJobs + ActiveJobs == TotalJobs.
type Session struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivity     time.Time `json:"lastActivity"`
	Active           bool      `json:"active"`
	TotalJobs        int       `json:"totalJobs"`
	ActiveJobs       int       `json:"activeJobs"`
	CompletedJobs    int       `json:"completedJobs"`
	FailedJobs       int       `json:"failedJobs"`
	StorageUsedBytes int64     `json:"storageUsedBytes"`
}

// Info is a session snapshot with derived ages.
type Info struct {
	Session
	Age  time.Duration `json:"age"`
	Idle time.Duration `json:"idle"`
}

// Stats aggregates every tracked session from one consistent snapshot.
type Stats struct {
	TotalSessions         int   `json:"totalSessions"`
	ActiveSessions        int   `json:"activeSessions"`
	TotalJobs             int   `json:"totalJobs"`
	ActiveJobs            int   `json:"activeJobs"`
	CompletedJobs         int   `json:"completedJobs"`
	FailedJobs            int   `json:"failedJobs"`
	TotalStorageBytes     int64 `json:"totalStorageBytes"`
	MaxConcurrentSessions int   `json:"maxConcurrentSessions"`
	MaxJobsPerSession     int   `json:"maxJobsPerSession"`
}

func (s Session) info(now time.Time) Info {
	return Info{
		Session: s,
		Age:     nonNegative(now.Sub(s.CreatedAt)),
		Idle:    nonNegative(now.Sub(s.LastActivity)),
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

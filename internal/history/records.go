package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one archived download.
type Record struct {
	ID            int64     `json:"id"`
	JobID         string    `json:"jobId"`
	SessionID     string    `json:"sessionId"`
	URL           string    `json:"url"`
	Category      string    `json:"category,omitempty"`
	State         string    `json:"state"`
	Success       bool      `json:"success"`
	Bytes         int64     `json:"bytes"`
	RetryCount    int       `json:"retryCount"`
	NetworkErrors int       `json:"networkErrors"`
	Message       string    `json:"message,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// Duration returns how long the download ran.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const recordColumns = `id, job_id, session_id, url, category, state, success, bytes,
	retry_count, network_errors, message, started_at, finished_at`

// Insert archives rec and returns its row id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO downloads
			(job_id, session_id, url, category, state, success, bytes, retry_count, network_errors, message, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.JobID, rec.SessionID, rec.URL, rec.Category, rec.State, boolToInt(rec.Success), rec.Bytes,
			rec.RetryCount, rec.NetworkErrors, rec.Message,
			rec.StartedAt.UTC().Format(timeLayout), rec.FinishedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert download record: %w", err)
	}
	return id, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM downloads ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent downloads: %w", err)
	}
	return scanRecords(rows)
}

// BySession returns a session's records, newest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM downloads WHERE session_id = ? ORDER BY finished_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session downloads: %w", err)
	}
	return scanRecords(rows)
}

// Prune deletes records that finished before cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE finished_at < ?`, before.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune downloads: %w", err)
	}
	return removed, nil
}

// Counts returns archived totals by state.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM downloads GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan download count: %w", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec        Record
			success    int
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.SessionID, &rec.URL, &rec.Category, &rec.State,
			&success, &rec.Bytes, &rec.RetryCount, &rec.NetworkErrors, &rec.Message, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan download record: %w", err)
		}
		rec.Success = success != 0
		rec.StartedAt = parseTime(startedAt)
		rec.FinishedAt = parseTime(finishedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate download records: %w", err)
	}
	return out, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

package ipc

import "mediafetch/internal/api"

// ServiceName prefixes every RPC method.
const ServiceName = "Mediafetch"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse = api.DaemonStatus

// StatsRequest fetches aggregate statistics.
type StatsRequest struct{}

// StatsResponse carries aggregate statistics.
type StatsResponse = api.Stats

// SessionsRequest lists sessions.
type SessionsRequest struct {
	All bool `json:"all"`
}

// SessionsResponse lists sessions.
type SessionsResponse = api.SessionListResponse

// DeactivateRequest marks a session inactive.
type DeactivateRequest struct {
	SessionID string `json:"sessionId"`
}

// DeactivateResponse reports the deactivation.
type DeactivateResponse struct {
	Deactivated bool `json:"deactivated"`
}

// CleanupRequest runs a maintenance sweep.
type CleanupRequest struct{}

// CleanupResponse reports what the sweep removed.
type CleanupResponse = api.Cleanup

// JobsRequest lists a session's jobs.
type JobsRequest struct {
	SessionID string `json:"sessionId"`
}

// JobsResponse lists jobs.
type JobsResponse = api.JobListResponse

// HistoryRequest fetches archived downloads.
type HistoryRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Limit     int    `json:"limit"`
}

// HistoryResponse carries archived downloads.
type HistoryResponse = api.HistoryResponse

// HealthRequest runs preflight checks.
type HealthRequest struct{}

// HealthResponse carries preflight results.
type HealthResponse = api.Health

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the result of a notification test.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

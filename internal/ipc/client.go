package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Stats retrieves aggregate statistics.
func (c *Client) Stats() (*StatsResponse, error) {
	return call[StatsRequest, StatsResponse](c, "Stats", StatsRequest{})
}

// Sessions lists active sessions, or all tracked sessions when all is set.
func (c *Client) Sessions(all bool) (*SessionsResponse, error) {
	return call[SessionsRequest, SessionsResponse](c, "Sessions", SessionsRequest{All: all})
}

// Deactivate marks a session inactive.
func (c *Client) Deactivate(sessionID string) (*DeactivateResponse, error) {
	return call[DeactivateRequest, DeactivateResponse](c, "Deactivate", DeactivateRequest{SessionID: sessionID})
}

// Cleanup runs a maintenance sweep.
func (c *Client) Cleanup() (*CleanupResponse, error) {
	return call[CleanupRequest, CleanupResponse](c, "Cleanup", CleanupRequest{})
}

// Jobs lists the jobs of a session.
func (c *Client) Jobs(sessionID string) (*JobsResponse, error) {
	return call[JobsRequest, JobsResponse](c, "Jobs", JobsRequest{SessionID: sessionID})
}

// History returns archived downloads, optionally for one session.
func (c *Client) History(sessionID string, limit int) (*HistoryResponse, error) {
	return call[HistoryRequest, HistoryResponse](c, "History", HistoryRequest{SessionID: sessionID, Limit: limit})
}

// Health runs the daemon's preflight checks.
func (c *Client) Health() (*HealthResponse, error) {
	return call[HealthRequest, HealthResponse](c, "Health", HealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

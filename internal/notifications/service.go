package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mediafetch/internal/config"
)

const userAgent = "mediafetch/0.1.0"

// Service defines the alert surface used by the daemon.
type Service interface {
	NotifyDownloadFailed(ctx context.Context, url, message string) error
	NotifyCapacityExhausted(ctx context.Context, active, limit int) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: cfg.NotificationTimeout()},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, url, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	data := payload{
		title:    "mediafetch - Download Failed",
		message:  fmt.Sprintf("❌ %s\n%s", strings.TrimSpace(url), message),
		tags:     []string{"mediafetch", "download", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCapacityExhausted(ctx context.Context, active, limit int) error {
	data := payload{
		title:   "mediafetch - At Capacity",
		message: fmt.Sprintf("Session limit reached: %d of %d active", active, limit),
		tags:    []string{"mediafetch", "sessions", "capacity"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "mediafetch - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"mediafetch", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDownloadFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyCapacityExhausted(context.Context, int, int) error    { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }

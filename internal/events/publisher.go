package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mediafetch/internal/logging"
	"mediafetch/internal/monitor"
)

const publishTimeout = 2 * time.Second

// Client is the slice of the Redis client used for publishing.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher forwards monitor events to a Redis channel as JSON.
type Publisher struct {
	client  Client
	channel string
	logger  *slog.Logger
	closer  func() error
}

// Connect dials redisURL, verifies it with PING, and returns a Publisher.
func Connect(ctx context.Context, redisURL, channel string, logger *slog.Logger) (*Publisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	p := NewPublisher(rdb, channel, logger)
	p.closer = rdb.Close
	return p, nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client Client, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With(logging.String(logging.FieldComponent, "events")),
	}
}

// Channel returns the destination channel.
func (p *Publisher) Channel() string {
	return p.channel
}

// HandleEvent publishes event. Progress events are skipped.
func (p *Publisher) HandleEvent(event monitor.Event) error {
	if event.Type == monitor.EventProgress {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	p.logger.Debug("event published",
		logging.String("event", string(event.Type)),
		logging.String(logging.FieldJobID, event.JobID),
		logging.Int64("receivers", receivers),
	)
	return nil
}

// Close releases the Redis connection when Connect created it.
func (p *Publisher) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer()
}

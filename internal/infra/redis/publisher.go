package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/docforge/internal/core/domain"
)

// Config holds Redis connection configuration. An empty URL disables the
// publisher entirely.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Publisher fans engine events out on a Redis pub/sub channel so external
// collaborators (aggregation, dashboards, storage) can consume them without
// linking against the engine.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

// NewPublisher creates a publisher and verifies connectivity.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "docforge:events"
	}

	return &Publisher{rdb: rdb, channel: channel}, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// HandleEvent implements the engine's event listener contract. Publish
// failures are logged, never propagated: a slow or absent subscriber must not
// stall job processing.
func (p *Publisher) HandleEvent(ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal event", "kind", ev.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		slog.Warn("Failed to publish event", "kind", ev.Kind, "error", err)
	}
}

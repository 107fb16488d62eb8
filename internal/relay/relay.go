// Package relay republishes matched transaction signatures to redis.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"solana-tx-monitor/internal/bus"
	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/observability"
)

// Publisher sends a message to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
	Close() error
}

// RedisPublisher publishes with redis PUBLISH.
type RedisPublisher struct {
	client *redis.Client
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{client: client}, nil
}

// Publish sends message to channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel, message string) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Relay forwards every transaction signature from a bus receiver.
type Relay struct {
	rx      *bus.Receiver[domain.TransactionInfo]
	pub     Publisher
	channel string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a relay. It takes ownership of rx.
func New(rx *bus.Receiver[domain.TransactionInfo], pub Publisher, channel string, logger *slog.Logger, metrics *observability.Metrics) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Relay{
		rx:      rx,
		pub:     pub,
		channel: channel,
		logger:  logger.With("component", "relay", "channel", channel),
		metrics: metrics,
	}
}

// Run publishes until ctx is done or the bus closes. Publish failures are
// logged and counted; they do not stop the relay.
func (r *Relay) Run(ctx context.Context) error {
	defer r.rx.Close()

	for {
		info, err := r.rx.Recv(ctx)

		var lagged *bus.LaggedError
		switch {
		case errors.As(err, &lagged):
			r.metrics.RecordLagged("relay", lagged.Missed)
			r.logger.Warn("relay lagged", "missed", lagged.Missed)
			continue
		case errors.Is(err, bus.ErrClosed):
			return nil
		case err != nil:
			return err
		}

		err = r.pub.Publish(ctx, r.channel, info.Signature)
		r.metrics.RecordRelayPublish(err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("publish failed", "signature", info.Signature, "error", err)
		}
	}
}

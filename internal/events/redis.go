// Package events carries job progress and cancellation requests over Redis.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-procurement-agent/internal/models"
)

const (
	DefaultChannel = "scrape.jobs"
	cancelPrefix   = "scrape:cancel:"
	cancelTTL      = 24 * time.Hour
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Bus publishes job events and stores cancellation flags.
type Bus struct {
	rdb     *redis.Client
	channel string
}

func NewBus(rdb *redis.Client, channel string) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{rdb: rdb, channel: channel}
}

// PublishJobEvent implements agent.EventPublisher.
func (b *Bus) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// RequestCancel flags jobID. The worker running it stops at its next loop
// iteration; a job not yet picked up is cancelled before it is claimed.
func (b *Bus) RequestCancel(ctx context.Context, jobID string) error {
	if err := b.rdb.Set(ctx, cancelPrefix+jobID, time.Now().UTC().Format(time.RFC3339), cancelTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

// IsCancelled implements agent.Canceller.
func (b *Bus) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := b.rdb.Exists(ctx, cancelPrefix+jobID).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}

// ClearCancel implements agent.Canceller. The agent drops the flag once the
// job is cancelled.
func (b *Bus) ClearCancel(ctx context.Context, jobID string) error {
	return b.rdb.Del(ctx, cancelPrefix+jobID).Err()
}

// Watch delivers every event on the channel to fn until ctx is done.
// Undecodable messages are logged and skipped.
func (b *Bus) Watch(ctx context.Context, fn func(models.JobEvent)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	log := zap.S().Named("events")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("⚠️ Skipping malformed event: %v", err)
				continue
			}
			fn(ev)
		}
	}
}

package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/models"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBus(rdb, ""), mr
}

func TestCancelFlag(t *testing.T) {
	ctx := context.Background()
	bus, mr := newTestBus(t)

	cancelled, err := bus.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, bus.RequestCancel(ctx, "job-1"))
	cancelled, err = bus.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.True(t, mr.Exists("scrape:cancel:job-1"))
	assert.Equal(t, cancelTTL, mr.TTL("scrape:cancel:job-1"))

	other, err := bus.IsCancelled(ctx, "job-2")
	require.NoError(t, err)
	assert.False(t, other)

	require.NoError(t, bus.ClearCancel(ctx, "job-1"))
	cancelled, err = bus.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestPublishAndWatch(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan models.JobEvent, 1)
	done := make(chan error, 1)
	watchCtx, stop := context.WithCancel(ctx)
	go func() {
		done <- bus.Watch(watchCtx, func(ev models.JobEvent) { got <- ev })
	}()

	// wait until the subscription is registered
	require.Eventually(t, func() bool {
		n, err := bus.rdb.PubSubNumSub(ctx, DefaultChannel).Result()
		return err == nil && n[DefaultChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishJobEvent(ctx, models.JobEvent{
		Type: "transition", JobID: "job-1", Status: models.StatusCompleted, Page: 3, Opportunities: 7,
	}))

	select {
	case ev := <-got:
		assert.Equal(t, "job-1", ev.JobID)
		assert.Equal(t, models.StatusCompleted, ev.Status)
		assert.Equal(t, 7, ev.Opportunities)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	stop()
	assert.NoError(t, <-done)
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	_ = rdb.Close()
}

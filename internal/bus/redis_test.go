package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-renderer/pkg/schema"
)

func newTestBus(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, feed <-chan schema.StatusEvent) schema.StatusEvent {
	t.Helper()
	select {
	case evt, ok := <-feed:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return schema.StatusEvent{}
}

func TestRedisPublishSubscribe(t *testing.T) {
	_, b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	want := schema.StatusEvent{SessionID: "s1", Status: schema.StatusCompleted}
	if err := b.Publish(ctx, want); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if got := receive(t, feed); got != want {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestRedisDropsUndecodablePayload(t *testing.T) {
	mr, b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	mr.Publish(DefaultChannel, "garbage")
	mr.Publish(DefaultChannel, `{"sessionId":"s2","status":"ready_to_run"}`)

	got := receive(t, feed)
	if got.SessionID != "s2" || got.Status != schema.StatusReadyToRun {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestRedisFeedClosesOnCancel(t *testing.T) {
	_, b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	feed, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			t.Fatal("expected feed to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

func TestRedisPing(t *testing.T) {
	mr, b := newTestBus(t)
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	mr.Close()
	if err := b.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail after server shutdown")
	}
}

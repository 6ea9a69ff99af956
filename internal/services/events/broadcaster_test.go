package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func receive(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	return event
}

func TestBroadcaster_PublishesToSessionChannel(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	sessionID := uuid.New()

	sub := client.Subscribe(ctx, Channel(sessionID))
	defer sub.Close()
	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	b := NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := b.PublishTurnCompleted(ctx, sessionID, "req-1", map[string]any{"turn": 3}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	event := receive(t, sub)
	if event.Type != EventTypeTurnCompleted {
		t.Errorf("Expected %s, got %s", EventTypeTurnCompleted, event.Type)
	}
	if event.SessionID != sessionID.String() || event.RequestID != "req-1" {
		t.Errorf("Unexpected ids: %+v", event)
	}
	if turn, ok := event.Data["turn"].(float64); !ok || turn != 3 {
		t.Errorf("Expected turn 3 in data, got %v", event.Data["turn"])
	}

	if err := b.PublishStrategyChanged(ctx, sessionID, "req-1", "cautious", "Cautious approach: player resistance is high."); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	event = receive(t, sub)
	if event.Type != EventTypeStrategyChanged || event.Data["strategy"] != "cautious" {
		t.Errorf("Unexpected strategy event: %+v", event)
	}
}

func TestBroadcaster_PublishFailsWhenRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	mr.Close()

	b := NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := b.PublishTurnFailed(context.Background(), uuid.New(), "req-2", "boom"); err == nil {
		t.Error("Expected error publishing to a closed server")
	}
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6a1f0e52-8c0b-4a55-9d54-3a5c1f2b7e10")
	if got := Channel(id); got != "session-events:6a1f0e52-8c0b-4a55-9d54-3a5c1f2b7e10" {
		t.Errorf("Unexpected channel %q", got)
	}
}

package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/jwebster45206/story-core/pkg/ecs"
)

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewRedisStorage("redis://"+mr.Addr(), 10*time.Minute, logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis storage: %v", err)
	}
	return store, mr
}

func TestRedisStorage_SaveAndLoadRecords(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	id := uuid.New()

	records := map[string]ecs.Record{
		"player/stats":    {"kind": "stats", "resistance": 72, "arousal": 15},
		"npc/personality": {"kind": "personality", "strategy": "cautious"},
	}
	if err := store.SaveRecords(ctx, id, records); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	key := "session:" + id.String()
	if !mr.Exists(key) {
		t.Fatalf("expected hash %s to exist", key)
	}
	if ttl := mr.TTL(key); ttl != 10*time.Minute {
		t.Errorf("expected TTL 10m, got %v", ttl)
	}

	loaded, err := store.LoadRecords(ctx, id)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}
	// JSON numbers decode as float64.
	if got := loaded["player/stats"]["resistance"]; got != float64(72) {
		t.Errorf("expected resistance 72, got %v", got)
	}
	if got := loaded["npc/personality"]["strategy"]; got != "cautious" {
		t.Errorf("expected strategy cautious, got %v", got)
	}
}

func TestRedisStorage_SaveMergesFields(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	id := uuid.New()

	_ = store.SaveRecords(ctx, id, map[string]ecs.Record{"player/stats": {"resistance": 90}})
	_ = store.SaveRecords(ctx, id, map[string]ecs.Record{"npc/personality": {"level": 2}})

	loaded, err := store.LoadRecords(ctx, id)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected merged records, got %v", loaded)
	}
}

func TestRedisStorage_LoadMissingAndDelete(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	id := uuid.New()

	loaded, err := store.LoadRecords(ctx, id)
	if err != nil || loaded != nil {
		t.Fatalf("expected nil, nil for missing session, got %v, %v", loaded, err)
	}

	_ = store.SaveRecords(ctx, id, map[string]ecs.Record{"player/stats": {"resistance": 1}})
	if err := store.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if mr.Exists("session:" + id.String()) {
		t.Error("expected session hash to be deleted")
	}
}

func TestRedisStorage_EmptySaveIsNoop(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	id := uuid.New()
	if err := store.SaveRecords(context.Background(), id, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mr.Exists("session:" + id.String()) {
		t.Error("empty save must not create a key")
	}
}

func TestRedisStorage_PingAndWait(t *testing.T) {
	store, mr := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := store.WaitForConnection(ctx); err != nil {
		t.Fatalf("WaitForConnection failed: %v", err)
	}
}

func TestNewRedisStorage_BadURL(t *testing.T) {
	if _, err := NewRedisStorage("not a url", 0, nil); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

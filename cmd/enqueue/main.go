package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwebster45206/story-core/internal/services/queue"
	queuePkg "github.com/jwebster45206/story-core/pkg/queue"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379", "Redis URL")
	sessionFlag := flag.String("session", "", "session ID (generated when empty)")
	kind := flag.String("type", "turn", "request type: turn, reset or end")
	location := flag.String("location", "open", "location tag for turn requests")
	resist := flag.String("resist", "", "resistance attempt: soft or firm")
	count := flag.Int("n", 1, "number of requests to enqueue")
	seed := flag.Uint64("seed", 0, "seed used if the request creates the session")
	flag.Parse()

	sessionID := uuid.New()
	if *sessionFlag != "" {
		id, err := uuid.Parse(*sessionFlag)
		if err != nil {
			log.Fatal("Invalid session ID:", err)
		}
		sessionID = id
	}

	client, err := queue.NewClient(*redisURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	ctx := context.Background()
	q := queue.NewTurnQueue(client)

	for i := 0; i < *count; i++ {
		req := queuePkg.NewTurnRequest(sessionID, *location, *resist)
		req.Type = queuePkg.RequestType(*kind)
		req.Seed = *seed
		if err := q.Enqueue(ctx, req); err != nil {
			log.Fatal("Failed to enqueue request:", err)
		}
		fmt.Printf("✅ Enqueued %s request: %s\n", req.Type, req.RequestID)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Session: %s\n", sessionID)
	fmt.Printf("📊 Queue depth: %d requests\n", depth)
	fmt.Println("\n💡 Now start the worker to see it process these requests!")
	fmt.Println("   Run: go run cmd/worker/main.go")
}

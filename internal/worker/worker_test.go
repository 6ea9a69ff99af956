package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/jwebster45206/story-core/internal/services/queue"
	"github.com/jwebster45206/story-core/pkg/profile"
	queuePkg "github.com/jwebster45206/story-core/pkg/queue"
	"github.com/jwebster45206/story-core/pkg/storage"
)

func setupTestWorker(t *testing.T) (*Worker, *queue.TurnQueue, *storage.MockStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := queue.NewClient("redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	tq := queue.NewTurnQueue(client)
	store := storage.NewMockStorage()
	w := New(tq, store, client.GetRedisClient(), profile.Default(), logger, "worker-test")
	return w, tq, store, mr
}

func TestWorker_TurnCreatesAndSavesSession(t *testing.T) {
	w, tq, store, _ := setupTestWorker(t)
	ctx := context.Background()
	sessionID := uuid.New()

	req := queuePkg.NewTurnRequest(sessionID, "open", "")
	req.Seed = 7
	if err := tq.Enqueue(ctx, req); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	if err := w.processNextRequest(); err != nil {
		t.Fatalf("processNextRequest failed: %v", err)
	}

	s, ok := w.Session(sessionID)
	if !ok {
		t.Fatal("Expected session to be created")
	}
	if s.Seed() != 7 {
		t.Errorf("Expected seed 7, got %d", s.Seed())
	}
	if s.TurnCount() != 1 {
		t.Errorf("Expected 1 turn, got %d", s.TurnCount())
	}
	if store.Saves() != 1 {
		t.Errorf("Expected 1 save, got %d", store.Saves())
	}
	records, err := store.LoadRecords(ctx, sessionID)
	if err != nil || records == nil {
		t.Fatalf("Expected stored records, got %v, %v", records, err)
	}
	if _, ok := records["session/meta"]; !ok {
		t.Error("Expected meta record to be stored")
	}
}

func TestWorker_TurnsAccumulate(t *testing.T) {
	w, _, _, _ := setupTestWorker(t)
	sessionID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := w.processRequest(queuePkg.NewTurnRequest(sessionID, "guarded", "soft")); err != nil {
			t.Fatalf("Turn %d failed: %v", i+1, err)
		}
	}
	s, _ := w.Session(sessionID)
	if s.TurnCount() != 3 {
		t.Errorf("Expected 3 turns, got %d", s.TurnCount())
	}
}

func TestWorker_LockedSessionIsRequeued(t *testing.T) {
	w, tq, store, mr := setupTestWorker(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := mr.Set(lockKey(sessionID), "other-worker"); err != nil {
		t.Fatalf("Failed to set lock: %v", err)
	}
	if err := tq.Enqueue(ctx, queuePkg.NewTurnRequest(sessionID, "open", "")); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	if err := w.processNextRequest(); err != nil {
		t.Fatalf("processNextRequest failed: %v", err)
	}

	depth, err := tq.Depth(ctx)
	if err != nil {
		t.Fatalf("Failed to get depth: %v", err)
	}
	if depth != 1 {
		t.Errorf("Expected request to be re-queued, depth %d", depth)
	}
	if _, ok := w.Session(sessionID); ok {
		t.Error("Expected no session while locked by another worker")
	}
	if store.Saves() != 0 {
		t.Errorf("Expected no saves, got %d", store.Saves())
	}

	// The other worker's lock must survive
	if got, _ := mr.Get(lockKey(sessionID)); got != "other-worker" {
		t.Errorf("Lock owner changed to %q", got)
	}
}

func TestWorker_ReleasesLockAfterProcessing(t *testing.T) {
	w, tq, _, mr := setupTestWorker(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := tq.Enqueue(ctx, queuePkg.NewTurnRequest(sessionID, "open", "")); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := w.processNextRequest(); err != nil {
		t.Fatalf("processNextRequest failed: %v", err)
	}
	if mr.Exists(lockKey(sessionID)) {
		t.Error("Expected lock to be released")
	}
}

func TestWorker_ResetAndEnd(t *testing.T) {
	w, _, store, _ := setupTestWorker(t)
	ctx := context.Background()
	sessionID := uuid.New()

	for i := 0; i < 2; i++ {
		if err := w.processRequest(queuePkg.NewTurnRequest(sessionID, "open", "")); err != nil {
			t.Fatalf("Turn failed: %v", err)
		}
	}

	reset := &queuePkg.Request{RequestID: "reset-1", Type: queuePkg.RequestTypeReset, SessionID: sessionID}
	if err := w.processRequest(reset); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s, _ := w.Session(sessionID)
	if s.TurnCount() != 0 || s.Pending() != "" {
		t.Errorf("Expected reset session, turn %d pending %q", s.TurnCount(), s.Pending())
	}
	afterReset, err := store.LoadRecords(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	for _, key := range []string{"player/stats", "npc/personality", "session/meta"} {
		if _, ok := afterReset[key]; !ok {
			t.Errorf("Expected %s to be stored after reset", key)
		}
	}

	end := &queuePkg.Request{RequestID: "end-1", Type: queuePkg.RequestTypeEnd, SessionID: sessionID}
	if err := w.processRequest(end); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if _, ok := w.Session(sessionID); ok {
		t.Error("Expected session to be dropped")
	}
	records, err := store.LoadRecords(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if records != nil {
		t.Errorf("Expected stored records to be deleted, got %d", len(records))
	}
}

func TestWorker_SaveFailureFailsRequest(t *testing.T) {
	w, _, store, _ := setupTestWorker(t)
	store.SetSaveError(context.DeadlineExceeded)

	if err := w.processRequest(queuePkg.NewTurnRequest(uuid.New(), "open", "")); err == nil {
		t.Error("Expected error when storage rejects the save")
	}
}

func TestWorker_UnknownRequestType(t *testing.T) {
	w, _, _, _ := setupTestWorker(t)

	req := &queuePkg.Request{RequestID: "x", Type: "chat", SessionID: uuid.New()}
	if err := w.processRequest(req); err == nil {
		t.Error("Expected error for unknown request type")
	}
}

func TestWorker_LogsCarrySessionAndError(t *testing.T) {
	w, _, store, _ := setupTestWorker(t)
	var buf bytes.Buffer
	w.log = slog.New(slog.NewTextHandler(&buf, nil))
	sessionID := uuid.New()

	if err := w.processRequest(queuePkg.NewTurnRequest(sessionID, "open", "")); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	reset := &queuePkg.Request{RequestID: "reset-1", Type: queuePkg.RequestTypeReset, SessionID: sessionID}
	if err := w.processRequest(reset); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	for _, want := range []string{
		`msg="Session created" session_id=` + sessionID.String(),
		`msg="Session reset" session_id=` + sessionID.String(),
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Expected %q in log:\n%s", want, buf.String())
		}
	}
	if strings.Count(buf.String(), `msg="Session reset"`) != 1 ||
		strings.Count(buf.String(), "session_id="+sessionID.String()+" session_id=") != 0 {
		t.Errorf("Expected one session_id per line:\n%s", buf.String())
	}

	buf.Reset()
	store.SetSaveError(errors.New("disk full"))
	if err := w.processRequest(queuePkg.NewTurnRequest(sessionID, "open", "")); err == nil {
		t.Fatal("Expected save failure")
	}
	out := buf.String()
	for _, want := range []string{`msg="Request failed"`, "session_id=" + sessionID.String(), "disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in failure log:\n%s", want, out)
		}
	}
}

func TestNew_GeneratesWorkerID(t *testing.T) {
	w := New(nil, nil, nil, profile.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	if len(w.ID()) != len("worker-")+8 {
		t.Errorf("Unexpected generated id %q", w.ID())
	}
}

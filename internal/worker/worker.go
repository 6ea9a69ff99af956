package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/story-core/internal/logger"
	"github.com/jwebster45206/story-core/internal/services/events"
	"github.com/jwebster45206/story-core/internal/services/queue"
	"github.com/jwebster45206/story-core/pkg/profile"
	queuePkg "github.com/jwebster45206/story-core/pkg/queue"
	"github.com/jwebster45206/story-core/pkg/session"
	"github.com/jwebster45206/story-core/pkg/storage"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
)

var errUnknownRequest = errors.New("unknown request type")

// Worker processes session requests from the turn queue. Sessions live in
// memory for the life of the worker; storage receives a snapshot after every
// request.
type Worker struct {
	id          string
	queue       *queue.TurnQueue
	store       storage.Storage
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	profile     *profile.Profile
	sessionOpts []session.Option
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc

	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
}

// New creates a new worker instance. Every session it creates uses prof and
// the given session options.
func New(turnQueue *queue.TurnQueue, store storage.Storage, redisClient *redis.Client, prof *profile.Profile, log *slog.Logger, workerID string, opts ...session.Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if store == nil {
		store = storage.Null{}
	}

	return &Worker{
		id:          workerID,
		queue:       turnQueue,
		store:       store,
		broadcaster: events.NewBroadcaster(redisClient, log),
		redisClient: redisClient,
		profile:     prof,
		sessionOpts: opts,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[uuid.UUID]*session.Session),
	}
}

// ID returns the worker's identifier, which is also the lock owner value
func (w *Worker) ID() string {
	return w.id
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				logger.WithError(w.log, err).Error("Error processing request", "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// Session returns the in-memory session for id, if this worker holds one
func (w *Worker) Session(id uuid.UUID) (*session.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	return s, ok
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	// Block waiting for next request (timeout so shutdown is noticed)
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout+time.Second)
	defer cancel()

	req, err := w.queue.BlockingDequeue(ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Timeout or shutdown - this is normal
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID.String(),
	)

	locked, err := w.acquireSessionLock(req.SessionID)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		// Another worker holds this session; re-queue at the end
		w.log.Info("Session already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"session_id", req.SessionID.String(),
		)
		if err := w.queue.Enqueue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseSessionLock(req.SessionID)
	return w.processRequest(req)
}

func lockKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-lock:%s", sessionID.String())
}

// acquireSessionLock returns true if the lock was acquired, false if already held
func (w *Worker) acquireSessionLock(sessionID uuid.UUID) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(sessionID), w.id, lockTTL).Result()
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// releaseSessionLock deletes the lock only if this worker owns it
func (w *Worker) releaseSessionLock(sessionID uuid.UUID) {
	if err := releaseScript.Run(w.ctx, w.redisClient, []string{lockKey(sessionID)}, w.id).Err(); err != nil {
		logger.WithError(logger.WithSession(w.log, sessionID), err).Error("Failed to release session lock")
	}
}

// processRequest runs a single request against its session
func (w *Worker) processRequest(req *queuePkg.Request) error {
	start := time.Now()

	if err := w.broadcaster.PublishRequestProcessing(w.ctx, req.SessionID, req.RequestID, string(req.Type)); err != nil {
		logger.WithError(w.log, err).Error("Failed to publish processing event")
		// Don't fail the request just because event publishing failed
	}

	var err error
	switch req.Type {
	case queuePkg.RequestTypeTurn:
		err = w.processTurn(req)
	case queuePkg.RequestTypeReset:
		err = w.processReset(req)
	case queuePkg.RequestTypeEnd:
		err = w.processEnd(req)
	default:
		err = fmt.Errorf("%w: %s", errUnknownRequest, req.Type)
	}

	if err != nil {
		log := logger.WithSession(w.log, req.SessionID)
		logger.WithError(log, err).Error("Request failed", "request_id", req.RequestID)
		if pubErr := w.broadcaster.PublishTurnFailed(w.ctx, req.SessionID, req.RequestID, err.Error()); pubErr != nil {
			logger.WithError(log, pubErr).Error("Failed to publish failure event")
		}
		return err
	}

	w.log.Info("Request processed successfully",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// sessionFor returns the session for req, creating it on first sight
func (w *Worker) sessionFor(req *queuePkg.Request) (*session.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.sessions[req.SessionID]; ok {
		return s, nil
	}

	opts := append([]session.Option{}, w.sessionOpts...)
	opts = append(opts,
		session.WithID(req.SessionID),
		session.WithLogger(w.log),
	)
	if req.Seed != 0 {
		opts = append(opts, session.WithSeed(req.Seed))
	}

	s, err := session.New(w.profile, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	w.sessions[req.SessionID] = s
	logger.WithSession(w.log, req.SessionID).Info("Session created", "seed", s.Seed())
	return s, nil
}

func (w *Worker) processTurn(req *queuePkg.Request) error {
	s, err := w.sessionFor(req)
	if err != nil {
		return err
	}

	res, err := s.Turn(w.ctx, session.Input{
		Location: req.Location,
		Resist:   session.Resist(req.Resist),
	})
	if err != nil {
		return fmt.Errorf("failed to run turn: %w", err)
	}
	if err := s.Save(w.ctx, w.store); err != nil {
		return err
	}

	if res.Decision.Notice != "" {
		if err := w.broadcaster.PublishStrategyChanged(w.ctx, req.SessionID, req.RequestID, string(res.Decision.Strategy), res.Decision.Notice); err != nil {
			logger.WithError(w.log, err).Error("Failed to publish strategy event")
		}
	}

	result := map[string]any{
		"turn":       res.Turn,
		"location":   res.Location,
		"action":     res.Decision.Action.ID,
		"level":      res.Decision.Level,
		"cap":        res.Decision.Cap,
		"strategy":   string(res.Decision.Strategy),
		"outcome":    res.Outcome.String(),
		"resisted":   res.Resisted,
		"text":       res.Text,
		"resistance": res.Resistance,
		"arousal":    res.Arousal,
	}
	if len(res.Faults) > 0 {
		result["faults"] = res.Faults
	}
	if err := w.broadcaster.PublishTurnCompleted(w.ctx, req.SessionID, req.RequestID, result); err != nil {
		logger.WithError(w.log, err).Error("Failed to publish completion event")
	}
	return nil
}

func (w *Worker) processReset(req *queuePkg.Request) error {
	s, err := w.sessionFor(req)
	if err != nil {
		return err
	}
	s.Reset()
	if err := w.store.DeleteSession(w.ctx, req.SessionID); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	if err := s.Save(w.ctx, w.store); err != nil {
		return err
	}
	if err := w.broadcaster.PublishSessionReset(w.ctx, req.SessionID, req.RequestID); err != nil {
		logger.WithError(w.log, err).Error("Failed to publish reset event")
	}
	return nil
}

func (w *Worker) processEnd(req *queuePkg.Request) error {
	w.mu.Lock()
	s, ok := w.sessions[req.SessionID]
	delete(w.sessions, req.SessionID)
	w.mu.Unlock()

	turns := 0
	if ok {
		turns = s.TurnCount()
	}
	if err := w.store.DeleteSession(w.ctx, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := w.broadcaster.PublishSessionEnded(w.ctx, req.SessionID, req.RequestID, turns); err != nil {
		logger.WithError(w.log, err).Error("Failed to publish end event")
	}
	logger.WithSession(w.log, req.SessionID).Info("Session ended", "turns", turns)
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeRequestProcessing EventType = "request.processing"
	EventTypeTurnCompleted     EventType = "turn.completed"
	EventTypeStrategyChanged   EventType = "strategy.changed"
	EventTypeSessionReset      EventType = "session.reset"
	EventTypeSessionEnded      EventType = "session.ended"
	EventTypeTurnFailed        EventType = "turn.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a session's events
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-events:%s", sessionID.String())
}

// Broadcaster publishes session events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishRequestProcessing publishes a request.processing event
func (b *Broadcaster) PublishRequestProcessing(ctx context.Context, sessionID uuid.UUID, requestID string, requestType string) error {
	event := Event{
		Type:      EventTypeRequestProcessing,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "processing",
			"type":   requestType,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishTurnCompleted publishes a turn.completed event carrying the turn summary
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, sessionID uuid.UUID, requestID string, result map[string]any) error {
	event := Event{
		Type:      EventTypeTurnCompleted,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data:      result,
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishStrategyChanged publishes a strategy.changed event with the player-facing notice
func (b *Broadcaster) PublishStrategyChanged(ctx context.Context, sessionID uuid.UUID, requestID string, strategy string, notice string) error {
	event := Event{
		Type:      EventTypeStrategyChanged,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"strategy": strategy,
			"notice":   notice,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishSessionReset publishes a session.reset event
func (b *Broadcaster) PublishSessionReset(ctx context.Context, sessionID uuid.UUID, requestID string) error {
	event := Event{
		Type:      EventTypeSessionReset,
		RequestID: requestID,
		SessionID: sessionID.String(),
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishSessionEnded publishes a session.ended event
func (b *Broadcaster) PublishSessionEnded(ctx context.Context, sessionID uuid.UUID, requestID string, turns int) error {
	event := Event{
		Type:      EventTypeSessionEnded,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"turns": turns,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishTurnFailed publishes a turn.failed event
func (b *Broadcaster) PublishTurnFailed(ctx context.Context, sessionID uuid.UUID, requestID string, errorMsg string) error {
	event := Event{
		Type:      EventTypeTurnFailed,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// publishToSession publishes an event to the session-specific channel
func (b *Broadcaster) publishToSession(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}

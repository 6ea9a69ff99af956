package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-core/pkg/ecs"
)

// Storage persists component records per session. Record keys are
// "<entity>/<kind>".
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// SaveRecords merges records into the session's stored set.
	SaveRecords(ctx context.Context, sessionID uuid.UUID, records map[string]ecs.Record) error
	// LoadRecords returns nil, nil when the session has nothing stored.
	LoadRecords(ctx context.Context, sessionID uuid.UUID) (map[string]ecs.Record, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// RecordKey builds the storage key of one component record.
func RecordKey(entity ecs.EntityID, kind ecs.Kind) string {
	return string(entity) + "/" + string(kind)
}

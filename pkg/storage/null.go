package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-core/pkg/ecs"
)

// Null discards everything. It is the default when no store is configured.
type Null struct{}

var _ Storage = Null{}

func (Null) Ping(ctx context.Context) error { return nil }
func (Null) Close() error                   { return nil }

func (Null) SaveRecords(ctx context.Context, sessionID uuid.UUID, records map[string]ecs.Record) error {
	return nil
}

func (Null) LoadRecords(ctx context.Context, sessionID uuid.UUID) (map[string]ecs.Record, error) {
	return nil, nil
}

func (Null) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return nil
}

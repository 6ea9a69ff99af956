package storage

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-core/pkg/ecs"
)

// MockStorage is an in-memory implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]map[string]ecs.Record
	saves     int
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[uuid.UUID]map[string]ecs.Record),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail every save with the given error
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveRecords merges records into the session
func (m *MockStorage) SaveRecords(ctx context.Context, sessionID uuid.UUID, records map[string]ecs.Record) error {
	if records == nil {
		return errors.New("records cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	stored, ok := m.sessions[sessionID]
	if !ok {
		stored = make(map[string]ecs.Record)
		m.sessions[sessionID] = stored
	}
	maps.Copy(stored, records)
	m.saves++
	return nil
}

// LoadRecords returns a copy of the stored records, or nil when absent
func (m *MockStorage) LoadRecords(ctx context.Context, sessionID uuid.UUID) (map[string]ecs.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return maps.Clone(stored), nil
}

// DeleteSession removes everything stored for the session
func (m *MockStorage) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Saves returns how many successful SaveRecords calls were made
func (m *MockStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

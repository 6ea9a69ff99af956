package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeTurn advances a session by one turn
	RequestTypeTurn RequestType = "turn"

	// RequestTypeReset returns a session to its starting state
	RequestTypeReset RequestType = "reset"

	// RequestTypeEnd drops a session and its stored records
	RequestTypeEnd RequestType = "end"
)

// Request represents a session request in the queue
type Request struct {
	RequestID string      `json:"request_id"`
	Type      RequestType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`

	// Turn-specific fields
	Location string `json:"location,omitempty"`
	Resist   string `json:"resist,omitempty"` // "", "soft" or "firm"

	// Seed is used only when the request creates the session
	Seed uint64 `json:"seed,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTurnRequest builds a turn request with a fresh request ID
func NewTurnRequest(sessionID uuid.UUID, location, resist string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       RequestTypeTurn,
		SessionID:  sessionID,
		Location:   location,
		Resist:     resist,
		EnqueuedAt: time.Now(),
	}
}

// MarshalJSON serializes the request to JSON for Redis storage
func (r *Request) MarshalJSON() ([]byte, error) {
	type Alias Request
	return json.Marshal(&struct {
		SessionID string `json:"session_id"`
		*Alias
	}{
		SessionID: r.SessionID.String(),
		Alias:     (*Alias)(r),
	})
}

// UnmarshalJSON deserializes the request from JSON in Redis
func (r *Request) UnmarshalJSON(data []byte) error {
	type Alias Request
	aux := &struct {
		SessionID string `json:"session_id"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	sessionID, err := uuid.Parse(aux.SessionID)
	if err != nil {
		return err
	}

	r.SessionID = sessionID
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

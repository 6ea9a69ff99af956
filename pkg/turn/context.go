// Package turn defines the read-only bundle passed to systems and the
// behavior engine on every turn.
package turn

// Outcome is the result of the previously attempted NPC action.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Known reports whether the outcome was recorded.
func (o Outcome) Known() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// Context is the per-turn bundle. It is passed by value and treated as
// read-only by every consumer; Values must not be mutated.
type Context struct {
	Turn       int               `json:"turn"`
	Location   string            `json:"location,omitempty"`
	Privacy    float64           `json:"privacy,omitempty"` // 0 public, 1 fully private
	LastAction string            `json:"last_action,omitempty"`
	Outcome    Outcome           `json:"outcome,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
}

// Value returns an auxiliary value by key.
func (c Context) Value(key string) (string, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Succeeded reports whether the previous action is known to have succeeded.
func (c Context) Succeeded() bool {
	return c.Outcome == OutcomeSuccess
}

package behavior

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jwebster45206/story-core/pkg/stats"
)

const (
	MinIntensity = 1
	MaxIntensity = 5
)

var ErrInvalidAction = errors.New("invalid action")

// Action is one entry of the action-intensity table.
type Action struct {
	ID        string `json:"id"`
	Intensity int    `json:"intensity"`

	// Affinity maps a trait name to the score bonus granted when the
	// personality is strong in that trait.
	Affinity map[string]float64 `json:"affinity,omitempty"`

	// Effects are applied to the target's gauges when the action lands.
	Effects map[stats.Name]int `json:"effects,omitempty"`

	// Temporary effects stack as decaying modifiers instead.
	Temporary map[stats.Name]int `json:"temporary,omitempty"`
}

// ActionTable is an immutable, validated set of actions in declaration order.
type ActionTable struct {
	actions []Action
	byID    map[string]int
}

// NewActionTable validates actions and builds a table.
func NewActionTable(actions ...Action) (*ActionTable, error) {
	t := &ActionTable{
		actions: make([]Action, 0, len(actions)),
		byID:    make(map[string]int, len(actions)),
	}
	for i, a := range actions {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: action %d has no id", ErrInvalidAction, i)
		}
		if _, dup := t.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidAction, a.ID)
		}
		if a.Intensity < MinIntensity || a.Intensity > MaxIntensity {
			return nil, fmt.Errorf("%w: %q intensity %d outside [%d,%d]",
				ErrInvalidAction, a.ID, a.Intensity, MinIntensity, MaxIntensity)
		}
		for stat := range a.Effects {
			if err := stats.Validate(stat); err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAction, a.ID, err)
			}
		}
		for stat := range a.Temporary {
			if err := stats.Validate(stat); err != nil {
				return nil, fmt.Errorf("%w: %q: temporary: %w", ErrInvalidAction, a.ID, err)
			}
		}
		t.byID[a.ID] = len(t.actions)
		t.actions = append(t.actions, a)
	}
	return t, nil
}

// Eligible returns every action whose intensity does not exceed bound.
func (t *ActionTable) Eligible(bound int) []Action {
	if t == nil {
		return nil
	}
	var out []Action
	for _, a := range t.actions {
		if a.Intensity <= bound {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the action with the given id.
func (t *ActionTable) Lookup(id string) (Action, bool) {
	if t == nil {
		return Action{}, false
	}
	i, ok := t.byID[id]
	if !ok {
		return Action{}, false
	}
	return t.actions[i], true
}

// IDs returns action ids in declaration order.
func (t *ActionTable) IDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, len(t.actions))
	for i, a := range t.actions {
		ids[i] = a.ID
	}
	return ids
}

// Len returns the number of actions.
func (t *ActionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.actions)
}

// All returns a copy of the actions.
func (t *ActionTable) All() []Action {
	if t == nil {
		return nil
	}
	return slices.Clone(t.actions)
}

// Package stats implements the bounded gauge pair carried by the player entity.
//
// Two base gauges, resistance and arousal, live in [MinValue, MaxValue].
// Base values only change through ApplyModifier, which clamps, appends an
// audit entry to a capped history and re-derives the threshold flags.
// Temporary modifiers are folded into the effective reading and decay each
// turn without touching the base values.
package stats

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jwebster45206/story-core/pkg/ecs"
)

// Kind is the component kind of Stats.
const Kind ecs.Kind = "stats"

// Name identifies a gauge.
type Name string

const (
	Resistance Name = "resistance"
	Arousal    Name = "arousal"
)

const (
	MinValue = 0
	MaxValue = 100

	DefaultHistoryLimit = 50
	DefaultDecayRate    = 0.8

	// ResetSource tags the history entries written by Reset.
	ResetSource = "reset"
)

// Threshold cut-offs. Flags are strict comparisons against the base gauges.
const (
	VulnerableBelow  = 40
	SubmissiveBelow  = 20
	ArousedAbove     = 60
	ClimaxReadyAbove = 85
)

// Threshold names accepted by Stats.Threshold.
const (
	ThresholdVulnerable  = "vulnerable"
	ThresholdAroused     = "aroused"
	ThresholdSubmissive  = "submissive"
	ThresholdClimaxReady = "climax_ready"
)

var ErrUnknownStat = errors.New("unknown stat")

// Thresholds are derived flags; never set them directly.
type Thresholds struct {
	Vulnerable  bool `json:"vulnerable"`
	Aroused     bool `json:"aroused"`
	Submissive  bool `json:"submissive"`
	ClimaxReady bool `json:"climax_ready"`
}

// Derive computes the threshold flags for a gauge pair.
func Derive(resistance, arousal int) Thresholds {
	return Thresholds{
		Vulnerable:  resistance < VulnerableBelow,
		Aroused:     arousal > ArousedAbove,
		Submissive:  resistance < SubmissiveBelow,
		ClimaxReady: arousal > ClimaxReadyAbove,
	}
}

// Map returns the flags keyed by threshold name.
func (t Thresholds) Map() map[string]bool {
	return map[string]bool{
		ThresholdVulnerable:  t.Vulnerable,
		ThresholdAroused:     t.Aroused,
		ThresholdSubmissive:  t.Submissive,
		ThresholdClimaxReady: t.ClimaxReady,
	}
}

// Change is one audit entry for a base gauge mutation.
type Change struct {
	Stat      Name   `json:"stat"`
	Requested int    `json:"requested"`
	Old       int    `json:"old"`
	New       int    `json:"new"`
	Delta     int    `json:"delta"`
	Source    string `json:"source"`
}

// Stats is the bounded gauge pair component.
type Stats struct {
	ecs.Base

	resistance int
	arousal    int
	thresholds Thresholds

	// modifiers are keyed "<stat>:<source>".
	modifiers map[string]int

	history      []Change
	historyLimit int
}

// Option configures a Stats component.
type Option func(*Stats)

// WithHistoryLimit sets the audit history ceiling. Values below 1 are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Stats) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New creates a Stats component with clamped initial gauges.
func New(resistance, arousal int, opts ...Option) *Stats {
	s := &Stats{
		resistance:   Clamp(resistance),
		arousal:      Clamp(arousal),
		modifiers:    make(map[string]int),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.thresholds = Derive(s.resistance, s.arousal)
	return s
}

func (*Stats) Kind() ecs.Kind { return Kind }

// Clamp bounds v to [MinValue, MaxValue].
func Clamp(v int) int {
	return max(MinValue, min(MaxValue, v))
}

// Validate returns ErrUnknownStat for anything other than the two gauges.
func Validate(stat Name) error {
	switch stat {
	case Resistance, Arousal:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownStat, stat)
}

func (s *Stats) gauge(stat Name) *int {
	switch stat {
	case Resistance:
		return &s.resistance
	case Arousal:
		return &s.arousal
	}
	return nil
}

// ApplyModifier changes a base gauge and records the change. Reset is the only
// other writer and is audited the same way.
func (s *Stats) ApplyModifier(stat Name, delta int, source string) (Change, error) {
	g := s.gauge(stat)
	if g == nil {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownStat, stat)
	}
	if source == "" {
		source = "unknown"
	}

	old := *g
	*g = Clamp(old + delta)
	ch := Change{
		Stat:      stat,
		Requested: delta,
		Old:       old,
		New:       *g,
		Delta:     *g - old,
		Source:    source,
	}

	s.record(ch)

	s.thresholds = Derive(s.resistance, s.arousal)
	s.MarkDirty()
	return ch, nil
}

func (s *Stats) record(ch Change) {
	s.history = append(s.history, ch)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// AddTemporary stacks a temporary modifier for stat from source. Base gauges
// are untouched.
func (s *Stats) AddTemporary(stat Name, value int, source string) error {
	if err := Validate(stat); err != nil {
		return err
	}
	if source == "" {
		source = "unknown"
	}
	key := string(stat) + ":" + source
	s.modifiers[key] += value
	if s.modifiers[key] == 0 {
		delete(s.modifiers, key)
	}
	s.MarkDirty()
	return nil
}

// DecayTemporary multiplies every temporary modifier by rate, truncating
// toward zero, and drops modifiers whose magnitude falls below 1.
func (s *Stats) DecayTemporary(rate float64) {
	if len(s.modifiers) == 0 {
		return
	}
	for key, v := range s.modifiers {
		decayed := int(float64(v) * rate)
		if decayed > -1 && decayed < 1 {
			delete(s.modifiers, key)
			continue
		}
		s.modifiers[key] = decayed
	}
	s.thresholds = Derive(s.resistance, s.arousal)
	s.MarkDirty()
}

// Effective returns the base gauge plus all temporary modifiers for stat,
// re-clamped.
func (s *Stats) Effective(stat Name) (int, error) {
	g := s.gauge(stat)
	if g == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStat, stat)
	}
	v := *g
	prefix := string(stat) + ":"
	for key, m := range s.modifiers {
		if strings.HasPrefix(key, prefix) {
			v += m
		}
	}
	return Clamp(v), nil
}

// ResistanceLevel is the effective resistance normalized to [0,1].
func (s *Stats) ResistanceLevel() float64 {
	v, _ := s.Effective(Resistance)
	return float64(v) / MaxValue
}

// ArousalLevel is the effective arousal normalized to [0,1].
func (s *Stats) ArousalLevel() float64 {
	v, _ := s.Effective(Arousal)
	return float64(v) / MaxValue
}

func (s *Stats) Resistance() int { return s.resistance }
func (s *Stats) Arousal() int    { return s.arousal }

// Thresholds returns the flags derived from the current base gauges.
func (s *Stats) Thresholds() Thresholds {
	return s.thresholds
}

// Threshold reports a single flag by name. Unknown names report false.
func (s *Stats) Threshold(name string) bool {
	return s.thresholds.Map()[name]
}

// Modifiers returns a copy of the temporary modifiers.
func (s *Stats) Modifiers() map[string]int {
	return maps.Clone(s.modifiers)
}

// History returns a copy of the audit history, oldest first.
func (s *Stats) History() []Change {
	return slices.Clone(s.history)
}

// Summary aggregates the audit history.
type Summary struct {
	TotalChanges      int      `json:"total_changes"`
	ResistanceChanges int      `json:"resistance_changes"`
	ArousalChanges    int      `json:"arousal_changes"`
	ResistanceLost    int      `json:"resistance_lost"`
	ArousalGained     int      `json:"arousal_gained"`
	Sources           []string `json:"sources"`
}

// Summary reports totals over the retained history.
func (s *Stats) Summary() Summary {
	var sum Summary
	seen := make(map[string]bool)
	for _, h := range s.history {
		sum.TotalChanges++
		switch h.Stat {
		case Resistance:
			sum.ResistanceChanges++
			if h.Delta < 0 {
				sum.ResistanceLost += h.Delta
			}
		case Arousal:
			sum.ArousalChanges++
			if h.Delta > 0 {
				sum.ArousalGained += h.Delta
			}
		}
		if !seen[h.Source] {
			seen[h.Source] = true
			sum.Sources = append(sum.Sources, h.Source)
		}
	}
	slices.Sort(sum.Sources)
	return sum
}

// Reset sets both gauges and clears temporary modifiers. History is kept and
// gains one "reset" change per gauge.
func (s *Stats) Reset(resistance, arousal int) {
	for _, stat := range []Name{Resistance, Arousal} {
		target := resistance
		if stat == Arousal {
			target = arousal
		}
		g := s.gauge(stat)
		old := *g
		*g = Clamp(target)
		s.record(Change{
			Stat:      stat,
			Requested: target - old,
			Old:       old,
			New:       *g,
			Delta:     *g - old,
			Source:    ResetSource,
		})
	}
	clear(s.modifiers)
	s.thresholds = Derive(s.resistance, s.arousal)
	s.MarkDirty()
}

func (s *Stats) ToRecord() ecs.Record {
	r := s.BaseRecord(Kind)
	effR, _ := s.Effective(Resistance)
	effA, _ := s.Effective(Arousal)
	r["resistance"] = s.resistance
	r["arousal"] = s.arousal
	r["thresholds"] = s.thresholds.Map()
	r["modifiers"] = s.Modifiers()
	r["effective"] = map[string]int{
		string(Resistance): effR,
		string(Arousal):    effA,
	}
	r["history_count"] = len(s.history)
	return r
}

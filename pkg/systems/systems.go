// Package systems holds the concrete scheduler systems run by a session.
package systems

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jwebster45206/story-core/pkg/ecs"
	"github.com/jwebster45206/story-core/pkg/stats"
	"github.com/jwebster45206/story-core/pkg/turn"
)

// System names and default priorities.
const (
	DecayName     = "stat_decay"
	ThresholdName = "threshold_watch"
	JournalName   = "journal"

	DecayPriority     = 10
	ThresholdPriority = 20
	JournalPriority   = 90
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DecaySystem decays temporary stat modifiers once per turn.
type DecaySystem struct {
	Rate float64
}

func (*DecaySystem) Name() string { return DecayName }

func (s *DecaySystem) Update(ctx context.Context, entities []*ecs.Entity, dt time.Duration, tc turn.Context) error {
	rate := s.Rate
	if rate <= 0 || rate >= 1 {
		rate = stats.DefaultDecayRate
	}
	for _, e := range entities {
		if st, ok := ecs.Get[*stats.Stats](e, stats.Kind); ok {
			st.DecayTemporary(rate)
		}
	}
	return nil
}

// Crossing is one threshold flag flip observed by ThresholdSystem.
type Crossing struct {
	Turn      int          `json:"turn"`
	Entity    ecs.EntityID `json:"entity"`
	Threshold string       `json:"threshold"`
	Active    bool         `json:"active"`
}

// ThresholdSystem watches dirty stat components for threshold flips.
// It does not clear the dirty flag.
type ThresholdSystem struct {
	logger *slog.Logger

	mu        sync.Mutex
	last      map[ecs.EntityID]stats.Thresholds
	crossings []Crossing
}

// NewThresholdSystem creates a ThresholdSystem. A nil logger discards output.
func NewThresholdSystem(logger *slog.Logger) *ThresholdSystem {
	if logger == nil {
		logger = discard()
	}
	return &ThresholdSystem{
		logger: logger,
		last:   make(map[ecs.EntityID]stats.Thresholds),
	}
}

func (*ThresholdSystem) Name() string { return ThresholdName }

func (s *ThresholdSystem) Update(ctx context.Context, entities []*ecs.Entity, dt time.Duration, tc turn.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		st, ok := ecs.Get[*stats.Stats](e, stats.Kind)
		if !ok || !st.Dirty() {
			continue
		}
		now := st.Thresholds()
		prev, seen := s.last[e.ID()]
		s.last[e.ID()] = now
		if !seen {
			prev = stats.Derive(stats.MaxValue, stats.MinValue)
		}

		before, after := prev.Map(), now.Map()
		for _, name := range slices.Sorted(maps.Keys(after)) {
			if before[name] == after[name] {
				continue
			}
			c := Crossing{Turn: tc.Turn, Entity: e.ID(), Threshold: name, Active: after[name]}
			s.crossings = append(s.crossings, c)
			s.logger.Info("Threshold crossed",
				"entity", string(e.ID()),
				"threshold", name,
				"active", c.Active,
				"turn", tc.Turn,
			)
		}
	}
	return nil
}

// Drain returns and clears the crossings seen since the last call.
func (s *ThresholdSystem) Drain() []Crossing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.crossings
	s.crossings = nil
	return out
}

// Forget drops the remembered thresholds of every entity.
func (s *ThresholdSystem) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.last)
	s.crossings = nil
}

// Entry is one journaled component record.
type Entry struct {
	Entity ecs.EntityID `json:"entity"`
	Kind   ecs.Kind     `json:"kind"`
	Turn   int          `json:"turn"`
	Record ecs.Record   `json:"record"`
}

// Journal accumulates component records between flushes.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// Add appends an entry.
func (j *Journal) Add(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// Len returns the number of pending entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Flush returns pending entries and empties the journal.
func (j *Journal) Flush() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.entries
	j.entries = nil
	return out
}

// Capture records every dirty component of entities as of turn t and marks
// it clean. It returns the number of entries added.
func (j *Journal) Capture(entities []*ecs.Entity, t int) int {
	n := 0
	for _, e := range entities {
		for _, c := range e.Components() {
			if !c.Dirty() {
				continue
			}
			j.Add(Entry{
				Entity: e.ID(),
				Kind:   c.Kind(),
				Turn:   t,
				Record: c.ToRecord(),
			})
			c.MarkClean()
			n++
		}
	}
	return n
}

// Latest collapses pending entries to the newest record per entity and kind,
// keyed "<entity>/<kind>". The journal is not modified.
func (j *Journal) Latest() map[string]ecs.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]ecs.Record, len(j.entries))
	for _, e := range j.entries {
		out[string(e.Entity)+"/"+string(e.Kind)] = e.Record
	}
	return out
}

// JournalSystem records every dirty component and marks it clean. It runs
// last so earlier systems still see this turn's dirty flags.
type JournalSystem struct {
	Journal *Journal
}

// NewJournalSystem creates a JournalSystem writing to j, or to a fresh
// journal when j is nil.
func NewJournalSystem(j *Journal) *JournalSystem {
	if j == nil {
		j = &Journal{}
	}
	return &JournalSystem{Journal: j}
}

func (*JournalSystem) Name() string { return JournalName }

func (s *JournalSystem) Update(ctx context.Context, entities []*ecs.Entity, dt time.Duration, tc turn.Context) error {
	s.Journal.Capture(entities, tc.Turn)
	return nil
}

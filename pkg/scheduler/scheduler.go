// Package scheduler runs independent systems against the entity set once per
// turn, in ascending priority order. A fault in one system is recovered,
// logged and counted; it never stops the rest of the pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jwebster45206/story-core/pkg/ecs"
	"github.com/jwebster45206/story-core/pkg/turn"
)

var (
	ErrDuplicateSystemName = errors.New("duplicate system name")
	ErrSystemNotFound      = errors.New("system not found")
	ErrSystemPanic         = errors.New("system panicked")
)

// System is a unit of per-turn logic. Systems hold no ordering state.
type System interface {
	Name() string
	Update(ctx context.Context, entities []*ecs.Entity, dt time.Duration, tc turn.Context) error
}

// SystemFault records one failed Update call.
type SystemFault struct {
	System string
	Turn   int
	Err    error
}

func (f *SystemFault) Error() string {
	return fmt.Sprintf("system %s failed on turn %d: %v", f.System, f.Turn, f.Err)
}

func (f *SystemFault) Unwrap() error {
	return f.Err
}

// Perf is the rolling performance counter of one system.
type Perf struct {
	Calls  int           `json:"calls"`
	Faults int           `json:"faults"`
	Total  time.Duration `json:"total"`
	Last   time.Duration `json:"last"`
}

// Average is Total divided by Calls.
func (p Perf) Average() time.Duration {
	if p.Calls == 0 {
		return 0
	}
	return p.Total / time.Duration(p.Calls)
}

type registration struct {
	system   System
	priority int
	seq      int
	enabled  bool
	perf     Perf
}

// PassReport summarizes one UpdateAll call.
type PassReport struct {
	Ran      []string
	Skipped  []string
	Faults   []*SystemFault
	Duration time.Duration
}

// OK reports whether every system that ran returned cleanly.
func (r PassReport) OK() bool {
	return len(r.Faults) == 0
}

// Scheduler owns system registrations and executes passes.
type Scheduler struct {
	mu      sync.Mutex
	systems []*registration
	nextSeq int
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for timing measurements.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty scheduler. A nil logger discards output.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSystem registers sys, enabled, at the given priority. Lower priorities
// run first; equal priorities keep registration order.
func (s *Scheduler) AddSystem(sys System, priority int) error {
	if sys == nil || sys.Name() == "" {
		return errors.New("system must be non-nil and named")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(sys.Name()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSystemName, sys.Name())
	}
	s.systems = append(s.systems, &registration{
		system:   sys,
		priority: priority,
		seq:      s.nextSeq,
		enabled:  true,
	})
	s.nextSeq++
	slices.SortStableFunc(s.systems, func(a, b *registration) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return a.seq - b.seq
	})

	s.logger.Debug("System registered", "system", sys.Name(), "priority", priority)
	return nil
}

func (s *Scheduler) find(name string) int {
	for i, r := range s.systems {
		if r.system.Name() == name {
			return i
		}
	}
	return -1
}

// RemoveSystem unregisters a system by name.
func (s *Scheduler) RemoveSystem(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name)
	if i < 0 {
		return false
	}
	s.systems = slices.Delete(s.systems, i, i+1)
	return true
}

// GetSystem looks up a system by name.
func (s *Scheduler) GetSystem(name string) (System, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name)
	if i < 0 {
		return nil, false
	}
	return s.systems[i].system, true
}

// SetEnabled toggles a system without removing it.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	s.systems[i].enabled = enabled
	return nil
}

// Enabled reports whether the named system is registered and enabled.
func (s *Scheduler) Enabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name)
	return i >= 0 && s.systems[i].enabled
}

// Names returns system names in execution order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.systems))
	for i, r := range s.systems {
		names[i] = r.system.Name()
	}
	return names
}

// Len returns the number of registered systems.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.systems)
}

// UpdateAll runs every enabled system once, in order. The pass holds the
// scheduler lock so no two passes interleave.
func (s *Scheduler) UpdateAll(ctx context.Context, entities []*ecs.Entity, dt time.Duration, tc turn.Context) PassReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report PassReport
	passStart := s.now()

	for _, r := range s.systems {
		name := r.system.Name()
		if !r.enabled {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		start := s.now()
		err := s.invoke(ctx, r.system, entities, dt, tc)
		elapsed := s.now().Sub(start)

		r.perf.Calls++
		r.perf.Total += elapsed
		r.perf.Last = elapsed
		report.Ran = append(report.Ran, name)

		if err != nil {
			r.perf.Faults++
			fault := &SystemFault{System: name, Turn: tc.Turn, Err: err}
			report.Faults = append(report.Faults, fault)
			s.logger.Warn("System fault recovered",
				"system", name,
				"priority", r.priority,
				"turn", tc.Turn,
				"error", err,
			)
		}
	}

	report.Duration = s.now().Sub(passStart)
	s.logger.Debug("Scheduler pass complete",
		"turn", tc.Turn,
		"ran", len(report.Ran),
		"faults", len(report.Faults),
		"duration", report.Duration,
	)
	return report
}

func (s *Scheduler) invoke(ctx context.Context, sys System, entities []*ecs.Entity, dt time.Duration, tc turn.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrSystemPanic, p)
		}
	}()
	return sys.Update(ctx, entities, dt, tc)
}

// Perf returns the counter for one system.
func (s *Scheduler) Perf(name string) (Perf, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(name)
	if i < 0 {
		return Perf{}, false
	}
	return s.systems[i].perf, true
}

// Report returns the counters of every system keyed by name.
func (s *Scheduler) Report() map[string]Perf {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Perf, len(s.systems))
	for _, r := range s.systems {
		out[r.system.Name()] = r.perf
	}
	return out
}

// ResetPerf zeroes every counter.
func (s *Scheduler) ResetPerf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.systems {
		r.perf = Perf{}
	}
}

// Package session is the turn orchestrator. A Session owns the entity
// registry, the system scheduler and the behavior engine for one player/NPC
// pair and advances them together one turn at a time.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/story-core/pkg/behavior"
	"github.com/jwebster45206/story-core/pkg/content"
	"github.com/jwebster45206/story-core/pkg/ecs"
	"github.com/jwebster45206/story-core/pkg/profile"
	"github.com/jwebster45206/story-core/pkg/scheduler"
	"github.com/jwebster45206/story-core/pkg/stats"
	"github.com/jwebster45206/story-core/pkg/storage"
	"github.com/jwebster45206/story-core/pkg/systems"
	"github.com/jwebster45206/story-core/pkg/turn"
)

// Entity IDs of the two actors.
const (
	PlayerID ecs.EntityID = "player"
	NPCID    ecs.EntityID = "npc"
)

// Resist is the player's attempt to push back against the NPC's last action.
type Resist string

const (
	ResistNone Resist = ""
	ResistSoft Resist = "soft"
	ResistFirm Resist = "firm"
)

// Resistance attempt tuning.
const (
	SoftResistChance = 0.7
	SoftResistGain   = 5
	FirmResistChance = 0.9
	FirmResistGain   = 10

	// PrivacyScale is how much a fully private location amplifies action effects.
	PrivacyScale = 0.3

	metaKey = "session/meta"
)

// Input is what the player does this turn.
type Input struct {
	Location string            `json:"location"`
	Resist   Resist            `json:"resist,omitempty"`
	Delta    time.Duration     `json:"delta,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// Result reports everything that happened during one turn.
type Result struct {
	Turn       int                `json:"turn"`
	Location   string             `json:"location"`
	Privacy    float64            `json:"privacy"`
	Applied    []stats.Change     `json:"applied,omitempty"`
	Resisted   bool               `json:"resisted"`
	Outcome    turn.Outcome       `json:"outcome"`
	Decision   behavior.Decision  `json:"decision"`
	Bucket     content.Bucket     `json:"bucket"`
	Text       string             `json:"text"`
	Crossings  []systems.Crossing `json:"crossings,omitempty"`
	Faults     []string           `json:"faults,omitempty"`
	Resistance int                `json:"resistance"`
	Arousal    int                `json:"arousal"`
	Thresholds stats.Thresholds   `json:"thresholds"`
}

// Session is not safe for concurrent turns; Turn serializes callers.
type Session struct {
	mu sync.Mutex

	id      uuid.UUID
	seed    uint64
	profile *profile.Profile
	logger  *slog.Logger

	registry   *ecs.Registry
	scheduler  *scheduler.Scheduler
	engine     *behavior.Engine
	content    content.Provider
	src        behavior.Source
	journal    *systems.Journal
	thresholds *systems.ThresholdSystem

	stats       *stats.Stats
	personality *behavior.Personality

	decayRate    float64
	historyLimit int

	turn    int
	pending string
}

// Option configures a Session.
type Option func(*Session)

// WithSeed makes every random decision in the session reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Session) { s.seed = seed }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithContent overrides the profile's content table.
func WithContent(p content.Provider) Option {
	return func(s *Session) {
		if p != nil {
			s.content = p
		}
	}
}

func WithDecayRate(rate float64) Option {
	return func(s *Session) {
		if rate > 0 && rate < 1 {
			s.decayRate = rate
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithID(id uuid.UUID) Option {
	return func(s *Session) {
		if id != uuid.Nil {
			s.id = id
		}
	}
}

// New builds a session from a profile. A nil profile uses profile.Default().
func New(p *profile.Profile, opts ...Option) (*Session, error) {
	if p == nil {
		p = profile.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:           uuid.New(),
		seed:         uint64(time.Now().UnixNano()),
		profile:      p,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		decayRate:    stats.DefaultDecayRate,
		historyLimit: stats.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id.String())
	if s.content == nil {
		if len(p.Content) > 0 {
			s.content = p.ContentTable()
		} else {
			s.content = content.Null{}
		}
	}

	s.src = behavior.NewSource(s.seed)

	table, err := p.ActionTable()
	if err != nil {
		return nil, fmt.Errorf("failed to build action table: %w", err)
	}
	s.personality, err = behavior.NewSeededPersonality(p.ResolvedTraits(), p.TraitJitter, s.src)
	if err != nil {
		return nil, fmt.Errorf("failed to build personality: %w", err)
	}
	s.engine, err = behavior.NewEngine(s.personality, table,
		behavior.WithSource(s.src),
		behavior.WithLogger(s.logger),
		behavior.WithLocationCaps(p.LocationCaps()),
		behavior.WithFallbackAction(p.Fallback()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build behavior engine: %w", err)
	}

	s.stats = stats.New(p.Player.Resistance, p.Player.Arousal, stats.WithHistoryLimit(s.historyLimit))
	if err := s.buildRegistry(); err != nil {
		return nil, err
	}
	// First pass journals the starting state.
	s.stats.MarkDirty()
	s.personality.MarkDirty()
	if err := s.buildScheduler(); err != nil {
		return nil, err
	}

	s.logger.Info("Session created",
		"profile", p.Name,
		"seed", s.seed,
		"strategy", string(s.personality.Strategy()),
	)
	return s, nil
}

func (s *Session) buildRegistry() error {
	s.registry = ecs.NewRegistry(stats.Kind, behavior.KindPersonality)
	for _, id := range []ecs.EntityID{PlayerID, NPCID} {
		if _, err := s.registry.Create(id); err != nil {
			return fmt.Errorf("failed to create entity %s: %w", id, err)
		}
	}
	if err := s.registry.Attach(PlayerID, s.stats); err != nil {
		return fmt.Errorf("failed to attach stats: %w", err)
	}
	if err := s.registry.Attach(NPCID, s.personality); err != nil {
		return fmt.Errorf("failed to attach personality: %w", err)
	}
	return nil
}

func (s *Session) buildScheduler() error {
	s.journal = &systems.Journal{}
	s.thresholds = systems.NewThresholdSystem(s.logger)
	s.scheduler = scheduler.New(s.logger)

	for _, reg := range []struct {
		sys      scheduler.System
		priority int
	}{
		{&systems.DecaySystem{Rate: s.decayRate}, systems.DecayPriority},
		{s.thresholds, systems.ThresholdPriority},
		{systems.NewJournalSystem(s.journal), systems.JournalPriority},
	} {
		if err := s.scheduler.AddSystem(reg.sys, reg.priority); err != nil {
			return fmt.Errorf("failed to register system: %w", err)
		}
	}
	return nil
}

// Turn advances the session by one turn.
func (s *Session) Turn(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turn++
	privacy := s.profile.Privacy(in.Location)
	res := Result{
		Turn:     s.turn,
		Location: in.Location,
		Privacy:  privacy,
		Outcome:  turn.OutcomeUnknown,
	}

	lastAction := s.pending
	if lastAction != "" {
		res.Applied = s.applyEffects(lastAction, privacy)
		res.Resisted = s.resolveResist(in.Resist)
		res.Outcome = turn.OutcomeSuccess
		if res.Resisted {
			res.Outcome = turn.OutcomeFailure
		}
	}

	tc := turn.Context{
		Turn:       s.turn,
		Location:   in.Location,
		Privacy:    privacy,
		LastAction: lastAction,
		Outcome:    res.Outcome,
		Values:     in.Values,
	}

	pass := s.scheduler.UpdateAll(ctx, s.registry.Entities(), in.Delta, tc)
	for _, f := range pass.Faults {
		res.Faults = append(res.Faults, f.Error())
	}
	res.Crossings = s.thresholds.Drain()

	level := s.stats.ResistanceLevel()
	res.Decision = s.engine.ChooseNextAction(level, tc)
	s.pending = res.Decision.Action.ID

	res.Bucket = content.BucketFor(level)
	res.Text = s.content.Text(content.Key{
		ActionID: res.Decision.Action.ID,
		Location: in.Location,
		Bucket:   res.Bucket,
	})

	res.Resistance = s.stats.Resistance()
	res.Arousal = s.stats.Arousal()
	res.Thresholds = s.stats.Thresholds()

	s.logger.Debug("Turn complete",
		"turn", s.turn,
		"action", res.Decision.Action.ID,
		"outcome", res.Outcome.String(),
		"resistance", res.Resistance,
		"arousal", res.Arousal,
	)
	return res, nil
}

// applyEffects applies the gauge and temporary effects of actionID scaled by
// privacy. Only gauge changes are returned.
func (s *Session) applyEffects(actionID string, privacy float64) []stats.Change {
	action, ok := s.engine.Table().Lookup(actionID)
	if !ok {
		return nil
	}
	scale := 1 + max(0, min(1, privacy))*PrivacyScale
	source := "npc:" + actionID

	var changes []stats.Change
	for _, stat := range []stats.Name{stats.Resistance, stats.Arousal} {
		base, ok := action.Effects[stat]
		if !ok {
			continue
		}
		ch, err := s.stats.ApplyModifier(stat, int(float64(base)*scale), source)
		if err != nil {
			s.logger.Warn("Failed to apply effect", "action", actionID, "stat", string(stat), "error", err)
			continue
		}
		changes = append(changes, ch)
	}
	for _, stat := range []stats.Name{stats.Resistance, stats.Arousal} {
		v, ok := action.Temporary[stat]
		if !ok {
			continue
		}
		if err := s.stats.AddTemporary(stat, int(float64(v)*scale), source); err != nil {
			s.logger.Warn("Failed to add temporary effect", "action", actionID, "stat", string(stat), "error", err)
		}
	}
	return changes
}

// resolveResist rolls the player's resistance attempt and reports whether it
// succeeded.
func (s *Session) resolveResist(r Resist) bool {
	var chance float64
	var gain int
	switch r {
	case ResistSoft:
		chance, gain = SoftResistChance, SoftResistGain
	case ResistFirm:
		chance, gain = FirmResistChance, FirmResistGain
	default:
		return false
	}
	if s.src.Float64() >= chance {
		return false
	}
	if _, err := s.stats.ApplyModifier(stats.Resistance, gain, "player:resist"); err != nil {
		s.logger.Warn("Failed to apply resistance", "error", err)
		return false
	}
	return true
}

// Save writes the journaled records and the session metadata to store.
// Components changed since the last scheduler pass are journaled first.
// Journal entries are only dropped once the store accepts them.
func (s *Session) Save(ctx context.Context, store storage.Storage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal.Capture(s.registry.Entities(), s.turn)
	records := s.journal.Latest()
	records[metaKey] = ecs.Record{
		"kind":    "meta",
		"profile": s.profile.Name,
		"seed":    s.seed,
		"turn":    s.turn,
		"pending": s.pending,
	}
	if err := store.SaveRecords(ctx, s.id, records); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.id, err)
	}
	s.journal.Flush()
	return nil
}

// Reset returns the session to its starting state. The random source keeps
// its position, so a reset session does not replay the same choices.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Reset(s.profile.Player.Resistance, s.profile.Player.Arousal)
	s.engine.Reset()
	s.thresholds.Forget()
	s.scheduler.ResetPerf()
	s.turn = 0
	s.pending = ""
	s.logger.Info("Session reset")
}

func (s *Session) ID() uuid.UUID                      { return s.id }
func (s *Session) Seed() uint64                       { return s.seed }
func (s *Session) Profile() *profile.Profile          { return s.profile }
func (s *Session) Registry() *ecs.Registry            { return s.registry }
func (s *Session) Scheduler() *scheduler.Scheduler    { return s.scheduler }
func (s *Session) Engine() *behavior.Engine           { return s.engine }
func (s *Session) Stats() *stats.Stats                { return s.stats }
func (s *Session) Personality() *behavior.Personality { return s.personality }

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Pending returns the action chosen last turn whose effects land next turn.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Snapshot returns the records of every entity.
func (s *Session) Snapshot() map[ecs.EntityID]ecs.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Snapshot()
}

// Package behavior implements the adaptive NPC decision process: strategy
// adaptation from a rolling resistance window, an escalation level capped by
// resistance and location, and trait-weighted action selection.
package behavior

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/story-core/pkg/turn"
)

// Rule constants for the adaptation step.
const (
	HighResistance = 0.7
	LowResistance  = 0.3

	CautiousRateFactor   = 0.7
	ConfidentRateFactor  = 1.2
	RetreatRateFactor    = 0.6
	AggressiveRateFactor = 1.1

	DominanceNudge = 0.03
	PatienceNudge  = 0.05
	SubtletyNudge  = 0.1

	// MinEncounters is how many outcomes must be seen before the success
	// rate can drive a strategy change.
	MinEncounters = 5
	PoorSuccess   = 0.3
	GoodSuccess   = 0.7

	// AffinityThreshold is the trait strength above which an action's
	// affinity bonus applies.
	AffinityThreshold = 0.7
	BaseScore         = 0.5
	PreferenceWeight  = 0.1

	DefaultFallbackAction = "wait"
)

// Default location tags.
const (
	LocationOpen    = "open"
	LocationGuarded = "guarded"
)

// DefaultLocationCaps are used when no caps are configured.
var DefaultLocationCaps = map[string]int{
	LocationOpen:    5,
	LocationGuarded: 2,
}

var selectionWeights = []int{3, 2, 1}

// Decision is the result of one ChooseNextAction call.
type Decision struct {
	Action     Action   `json:"action"`
	Notice     string   `json:"notice,omitempty"`
	Strategy   Strategy `json:"strategy"`
	Level      int      `json:"level"`
	Cap        int      `json:"cap"`
	Resistance float64  `json:"resistance"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// Engine drives one Personality against one ActionTable.
type Engine struct {
	personality *Personality
	table       *ActionTable
	src         Source
	logger      *slog.Logger
	caser       cases.Caser

	caps     map[string]int
	minCap   int
	fallback string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSource sets the randomness source.
func WithSource(src Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.src = src
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLocationCaps replaces the location caps. Values are clamped to
// [MinIntensity, MaxIntensity]. An empty map keeps the defaults.
func WithLocationCaps(caps map[string]int) Option {
	return func(e *Engine) {
		if len(caps) == 0 {
			return
		}
		e.caps = make(map[string]int, len(caps))
		for tag, c := range caps {
			e.caps[tag] = clampLevel(c)
		}
	}
}

// WithFallbackAction sets the action returned when the pool is empty.
func WithFallbackAction(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.fallback = id
		}
	}
}

// NewEngine creates an engine. The personality is required.
func NewEngine(p *Personality, table *ActionTable, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil personality", ErrIncompletePersonality)
	}
	if table == nil {
		return nil, errors.New("action table is required")
	}
	e := &Engine{
		personality: p,
		table:       table,
		src:         NewSource(uint64(time.Now().UnixNano())),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		caser:       cases.Title(language.English),
		caps:        maps.Clone(DefaultLocationCaps),
		fallback:    DefaultFallbackAction,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.minCap = MaxIntensity
	for _, c := range e.caps {
		e.minCap = min(e.minCap, c)
	}
	return e, nil
}

// Personality returns the engine's personality component.
func (e *Engine) Personality() *Personality {
	return e.personality
}

// Table returns the engine's action table.
func (e *Engine) Table() *ActionTable {
	return e.table
}

// Adapt pushes a resistance reading into the rolling window and applies at
// most one strategy change. It returns a one-line notice when the strategy
// changed and "" otherwise.
func (e *Engine) Adapt(resistance float64, turnNum int) string {
	p := e.personality
	r := clamp01(resistance)
	p.pushReading(r)

	lo, hi := slices.Min(p.window), slices.Max(p.window)
	var sum float64
	for _, v := range p.window {
		sum += v
	}
	avg := sum / float64(len(p.window))

	from := p.strategy
	var reason string

	switch {
	case hi > HighResistance && lo < LowResistance:
		if p.strategy == StrategyAdaptive {
			return ""
		}
		p.strategy = StrategyAdaptive
		reason = "mixed signals"

	case avg > HighResistance && p.strategy != StrategyCautious && p.strategy != StrategyRetreating:
		p.strategy = StrategyCautious
		p.escalationRate = max(MinEscalationRate, p.escalationRate*CautiousRateFactor)
		p.nudge(TraitPatience, PatienceNudge)
		reason = "resistance is high"

	case avg < LowResistance && p.strategy != StrategyConfident && p.strategy != StrategyAggressive:
		p.strategy = StrategyConfident
		p.escalationRate = min(MaxEscalationRate, p.escalationRate*ConfidentRateFactor)
		// The nudge shrinks as dominance approaches 1.
		p.nudge(TraitDominance, DominanceNudge*(1-p.Trait(TraitDominance)))
		reason = "resistance is low"

	case p.encounters > MinEncounters && p.strategy == StrategyCautious && p.SuccessRate() < PoorSuccess:
		p.strategy = StrategyRetreating
		p.escalationRate = max(MinEscalationRate, p.escalationRate*RetreatRateFactor)
		p.nudge(TraitSubtlety, SubtletyNudge)
		reason = "repeated failures"

	case p.encounters > MinEncounters && p.strategy == StrategyConfident &&
		p.SuccessRate() > GoodSuccess && p.Trait(TraitDominance) > AffinityThreshold:
		p.strategy = StrategyAggressive
		p.escalationRate = min(MaxEscalationRate, p.escalationRate*AggressiveRateFactor)
		reason = "repeated success"

	default:
		return ""
	}

	p.recordAdaptation(Adaptation{
		Turn:    turnNum,
		From:    from,
		To:      p.strategy,
		Reason:  reason,
		Reading: avg,
		Rate:    p.escalationRate,
	})
	p.MarkDirty()

	e.logger.Info("Strategy changed",
		"from", string(from),
		"to", string(p.strategy),
		"reason", reason,
		"reading", avg,
		"escalation_rate", p.escalationRate,
		"turn", turnNum,
	)
	return fmt.Sprintf("%s approach: %s.", e.caser.String(string(p.strategy)), reason)
}

// ComputedCap maps resistance to the escalation ceiling, adjusted by strategy.
func (e *Engine) ComputedCap(resistance float64) int {
	r := clamp01(resistance)
	var c int
	switch {
	case r >= 0.8:
		c = 2
	case r >= 0.5:
		c = 3
	case r >= 0.2:
		c = 4
	default:
		c = 5
	}
	switch e.personality.strategy {
	case StrategyCautious, StrategyRetreating:
		c--
	case StrategyAggressive:
		c++
	}
	return clampLevel(c)
}

// LocationCap returns the cap for a location tag. Unknown tags get the most
// restrictive configured cap.
func (e *Engine) LocationCap(location string) int {
	if c, ok := e.caps[location]; ok {
		return c
	}
	return e.minCap
}

// EffectiveCap is the lower of the computed and location caps.
func (e *Engine) EffectiveCap(resistance float64, location string) int {
	return min(e.ComputedCap(resistance), e.LocationCap(location))
}

// Advance moves the escalation level toward the effective cap. The level
// climbs by the escalation rate per turn and drops to the cap immediately
// when the cap falls below it.
func (e *Engine) Advance(resistance float64, location string) int {
	p := e.personality
	ceiling := e.EffectiveCap(resistance, location)

	switch {
	case p.level > ceiling:
		p.level = ceiling
		p.progress = 0
	case p.level < ceiling:
		p.progress += p.escalationRate
		for p.progress >= 1 && p.level < ceiling {
			p.level++
			p.progress--
		}
		if p.level == ceiling {
			p.progress = 0
		}
	}
	return p.level
}

// Score is the selection weight basis of an action for this personality.
func (e *Engine) Score(a Action) float64 {
	s := BaseScore
	for trait, bonus := range a.Affinity {
		if e.personality.Trait(trait) > AffinityThreshold {
			s += bonus
		}
	}
	return s + float64(e.personality.Preference(a.ID))*PreferenceWeight
}

// SelectAction picks an action with intensity at most bound. The second
// result reports whether the fallback action was used.
func (e *Engine) SelectAction(bound int) (Action, bool) {
	p := e.personality
	pool := e.table.Eligible(bound)

	fresh := slices.DeleteFunc(slices.Clone(pool), func(a Action) bool {
		return slices.Contains(p.recent, a.ID)
	})
	if len(fresh) > 0 {
		pool = fresh
	}

	if len(pool) == 0 {
		a, ok := e.table.Lookup(e.fallback)
		if !ok {
			a = Action{ID: e.fallback, Intensity: MinIntensity}
		}
		p.remember(a.ID)
		return a, true
	}

	type scored struct {
		action Action
		score  float64
	}
	ranked := make([]scored, len(pool))
	for i, a := range pool {
		ranked[i] = scored{action: a, score: e.Score(a)}
	}
	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.action.ID, b.action.ID)
	})

	top := min(len(ranked), len(selectionWeights))
	total := 0
	for _, w := range selectionWeights[:top] {
		total += w
	}
	pick := e.src.IntN(total)
	chosen := ranked[0].action
	for i, w := range selectionWeights[:top] {
		if pick < w {
			chosen = ranked[i].action
			break
		}
		pick -= w
	}

	p.remember(chosen.ID)
	return chosen, false
}

// RecordOutcome feeds the result of a previously chosen action back into the
// learned preferences.
func (e *Engine) RecordOutcome(actionID string, success bool) {
	if actionID == "" {
		return
	}
	v := e.personality.Learn(actionID, success)
	e.logger.Debug("Outcome recorded", "action", actionID, "success", success, "preference", v)
}

// ChooseNextAction runs one full decision: learn from the previous outcome,
// adapt the strategy, advance the escalation level and select an action.
func (e *Engine) ChooseNextAction(resistance float64, tc turn.Context) Decision {
	if tc.LastAction != "" && tc.Outcome.Known() {
		e.RecordOutcome(tc.LastAction, tc.Succeeded())
	}

	r := clamp01(resistance)
	notice := e.Adapt(r, tc.Turn)
	level := e.Advance(r, tc.Location)
	action, fallback := e.SelectAction(level)
	e.personality.MarkDirty()

	d := Decision{
		Action:     action,
		Notice:     notice,
		Strategy:   e.personality.strategy,
		Level:      level,
		Cap:        e.EffectiveCap(r, tc.Location),
		Resistance: r,
		Fallback:   fallback,
	}
	e.logger.Debug("Action chosen",
		"action", action.ID,
		"strategy", string(d.Strategy),
		"level", d.Level,
		"cap", d.Cap,
		"turn", tc.Turn,
	)
	return d
}

// Reset restores the personality to its baseline.
func (e *Engine) Reset() {
	e.personality.Reset()
}

func clampLevel(v int) int {
	return max(MinIntensity, min(MaxIntensity, v))
}

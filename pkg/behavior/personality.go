package behavior

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jwebster45206/story-core/pkg/ecs"
)

// KindPersonality is the component kind of Personality.
const KindPersonality ecs.Kind = "personality"

// Strategy is the NPC's current approach.
type Strategy string

const (
	StrategyNormal     Strategy = "normal"
	StrategyCautious   Strategy = "cautious"
	StrategyConfident  Strategy = "confident"
	StrategyAggressive Strategy = "aggressive"
	StrategyRetreating Strategy = "retreating"
	StrategyAdaptive   Strategy = "adaptive"
)

// Trait names used by the adaptation rules. Profiles may define more.
const (
	TraitDominance    = "dominance"
	TraitPatience     = "patience"
	TraitCharm        = "charm"
	TraitAdaptability = "adaptability"
	TraitPersistence  = "persistence"
	TraitSubtlety     = "subtlety"
	TraitIntelligence = "intelligence"
)

// DefaultTraits lists the standard trait set in a stable order.
var DefaultTraits = []string{
	TraitDominance,
	TraitPatience,
	TraitCharm,
	TraitAdaptability,
	TraitPersistence,
	TraitSubtlety,
	TraitIntelligence,
}

const (
	AdaptationLimit  = 20
	LearnedMin       = -5
	LearnedMax       = 10
	LearnSuccessStep = 2
	LearnFailureStep = -1

	DefaultEscalationRate = 1.0
	MinEscalationRate     = 0.3
	MaxEscalationRate     = 2.0

	readingWindow = 3
	recentActions = 2
)

var ErrIncompletePersonality = errors.New("incomplete personality")

// Adaptation is one recorded strategy change.
type Adaptation struct {
	Turn    int      `json:"turn"`
	From    Strategy `json:"from"`
	To      Strategy `json:"to"`
	Reason  string   `json:"reason"`
	Reading float64  `json:"reading"`
	Rate    float64  `json:"rate"`
}

// Personality is the NPC's trait profile plus its evolving behavior state.
type Personality struct {
	ecs.Base

	traits   map[string]float64
	baseline map[string]float64

	strategy       Strategy
	escalationRate float64
	level          int
	progress       float64

	adaptations []Adaptation
	learned     map[string]int

	encounters int
	successes  int
	failures   int

	recent []string
	window []float64
}

// NewPersonality builds a personality from an explicit trait set. Every value
// must lie in [0,1] and at least one trait is required.
func NewPersonality(traits map[string]float64) (*Personality, error) {
	if len(traits) == 0 {
		return nil, fmt.Errorf("%w: no traits", ErrIncompletePersonality)
	}
	for name, v := range traits {
		if name == "" {
			return nil, fmt.Errorf("%w: empty trait name", ErrIncompletePersonality)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: trait %s=%.2f outside [0,1]", ErrIncompletePersonality, name, v)
		}
	}
	p := &Personality{
		traits:   maps.Clone(traits),
		baseline: maps.Clone(traits),
		learned:  make(map[string]int),
	}
	p.resetState()
	return p, nil
}

// NewSeededPersonality perturbs each profile trait by up to ±jitter using src.
// Traits are visited in name order so a given seed always yields the same
// personality.
func NewSeededPersonality(profile map[string]float64, jitter float64, src Source) (*Personality, error) {
	if len(profile) == 0 {
		return nil, fmt.Errorf("%w: no traits", ErrIncompletePersonality)
	}
	jitter = clamp01(jitter)
	traits := make(map[string]float64, len(profile))
	for _, name := range slices.Sorted(maps.Keys(profile)) {
		v := profile[name]
		if src != nil && jitter > 0 {
			v += (src.Float64()*2 - 1) * jitter
		}
		traits[name] = clamp01(v)
	}
	return NewPersonality(traits)
}

func (p *Personality) resetState() {
	p.strategy = StrategyNormal
	p.escalationRate = DefaultEscalationRate
	p.level = 1
	p.progress = 0
	p.adaptations = nil
	clear(p.learned)
	p.encounters, p.successes, p.failures = 0, 0, 0
	p.recent = nil
	p.window = nil
}

func (*Personality) Kind() ecs.Kind { return KindPersonality }

// Trait returns a trait value; unknown traits read as 0.
func (p *Personality) Trait(name string) float64 {
	return p.traits[name]
}

// Traits returns a copy of the current trait values.
func (p *Personality) Traits() map[string]float64 {
	return maps.Clone(p.traits)
}

func (p *Personality) Strategy() Strategy      { return p.strategy }
func (p *Personality) EscalationRate() float64 { return p.escalationRate }
func (p *Personality) Level() int              { return p.level }
func (p *Personality) Encounters() int         { return p.encounters }

// Adaptations returns the retained strategy changes, oldest first.
func (p *Personality) Adaptations() []Adaptation {
	return slices.Clone(p.adaptations)
}

// Window returns the retained resistance readings, oldest first.
func (p *Personality) Window() []float64 { return slices.Clone(p.window) }

// Recent returns the most recent action IDs, oldest first.
func (p *Personality) Recent() []string { return slices.Clone(p.recent) }

// SuccessRate is successes over encounters, or 0 before any encounter.
func (p *Personality) SuccessRate() float64 {
	if p.encounters == 0 {
		return 0
	}
	return float64(p.successes) / float64(p.encounters)
}

// Learn updates the learned preference for actionID and the encounter counters.
func (p *Personality) Learn(actionID string, success bool) int {
	step := LearnFailureStep
	if success {
		step = LearnSuccessStep
		p.successes++
	} else {
		p.failures++
	}
	p.encounters++
	v := max(LearnedMin, min(LearnedMax, p.learned[actionID]+step))
	p.learned[actionID] = v
	p.MarkDirty()
	return v
}

// Preference returns the learned preference for actionID.
func (p *Personality) Preference(actionID string) int {
	return p.learned[actionID]
}

// Reset restores the baseline traits and clears all evolved state.
func (p *Personality) Reset() {
	p.traits = maps.Clone(p.baseline)
	p.resetState()
	p.MarkDirty()
}

func (p *Personality) nudge(trait string, delta float64) {
	if _, ok := p.traits[trait]; !ok {
		return
	}
	p.traits[trait] = clamp01(p.traits[trait] + delta)
}

func (p *Personality) pushReading(r float64) {
	p.window = append(p.window, r)
	if over := len(p.window) - readingWindow; over > 0 {
		p.window = slices.Delete(p.window, 0, over)
	}
}

func (p *Personality) remember(actionID string) {
	p.recent = append(p.recent, actionID)
	if over := len(p.recent) - recentActions; over > 0 {
		p.recent = slices.Delete(p.recent, 0, over)
	}
}

func (p *Personality) recordAdaptation(a Adaptation) {
	p.adaptations = append(p.adaptations, a)
	if over := len(p.adaptations) - AdaptationLimit; over > 0 {
		p.adaptations = slices.Delete(p.adaptations, 0, over)
	}
}

// PersonalitySummary is a compact view for logs and tooling.
type PersonalitySummary struct {
	Strategy       Strategy `json:"strategy"`
	EscalationRate float64  `json:"escalation_rate"`
	Level          int      `json:"level"`
	Encounters     int      `json:"encounters"`
	SuccessRate    float64  `json:"success_rate"`
	Adaptations    int      `json:"adaptations"`
	Preferred      []string `json:"preferred,omitempty"`
	Avoided        []string `json:"avoided,omitempty"`
}

// Summary reports the current state. Preferred and Avoided list actions with
// positive and negative learned preference, strongest first.
func (p *Personality) Summary() PersonalitySummary {
	s := PersonalitySummary{
		Strategy:       p.strategy,
		EscalationRate: p.escalationRate,
		Level:          p.level,
		Encounters:     p.encounters,
		SuccessRate:    p.SuccessRate(),
		Adaptations:    len(p.adaptations),
	}
	for _, id := range slices.Sorted(maps.Keys(p.learned)) {
		switch v := p.learned[id]; {
		case v > 0:
			s.Preferred = append(s.Preferred, id)
		case v < 0:
			s.Avoided = append(s.Avoided, id)
		}
	}
	slices.SortStableFunc(s.Preferred, func(a, b string) int { return p.learned[b] - p.learned[a] })
	slices.SortStableFunc(s.Avoided, func(a, b string) int { return p.learned[a] - p.learned[b] })
	return s
}

func (p *Personality) ToRecord() ecs.Record {
	r := p.BaseRecord(KindPersonality)
	r["traits"] = p.Traits()
	r["strategy"] = string(p.strategy)
	r["escalation_rate"] = p.escalationRate
	r["level"] = p.level
	r["learned"] = maps.Clone(p.learned)
	r["adaptations"] = p.Adaptations()
	r["encounters"] = p.encounters
	r["successes"] = p.successes
	r["failures"] = p.failures
	r["recent"] = p.Recent()
	r["window"] = p.Window()
	return r
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

package behavior

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/story-core/pkg/stats"
	"github.com/jwebster45206/story-core/pkg/turn"
)

func testTraits() map[string]float64 {
	return map[string]float64{
		TraitDominance:    0.5,
		TraitPatience:     0.5,
		TraitCharm:        0.8,
		TraitAdaptability: 0.5,
		TraitPersistence:  0.5,
		TraitSubtlety:     0.5,
		TraitIntelligence: 0.5,
	}
}

func testTable(t *testing.T) *ActionTable {
	t.Helper()
	table, err := NewActionTable(
		Action{ID: "greet", Intensity: 1, Effects: map[stats.Name]int{stats.Resistance: -2}},
		Action{ID: "joke", Intensity: 2, Affinity: map[string]float64{TraitCharm: 0.3}},
		Action{ID: "compliment", Intensity: 2, Affinity: map[string]float64{TraitCharm: 0.4}},
		Action{ID: "invite", Intensity: 3},
		Action{ID: "persuade", Intensity: 4, Affinity: map[string]float64{TraitDominance: 0.3}},
		Action{ID: "ultimatum", Intensity: 5},
	)
	require.NoError(t, err)
	return table
}

func newTestEngine(t *testing.T, seed uint64, opts ...Option) *Engine {
	t.Helper()
	p, err := NewPersonality(testTraits())
	require.NoError(t, err)
	e, err := NewEngine(p, testTable(t), append([]Option{WithSource(NewSource(seed))}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestAdapt_HighResistanceTurnsCautiousOnce(t *testing.T) {
	e := newTestEngine(t, 1)
	startRate := e.Personality().EscalationRate()

	var notices []string
	for i := 0; i < 6; i++ {
		if n := e.Adapt(0.9, i); n != "" {
			notices = append(notices, n)
		}
	}

	require.Len(t, notices, 1, "exactly one notice for one change")
	assert.Contains(t, notices[0], "Cautious")
	assert.Equal(t, StrategyCautious, e.Personality().Strategy())
	assert.LessOrEqual(t, e.Personality().EscalationRate(), startRate*0.7+1e-9)
	assert.Len(t, e.Personality().Adaptations(), 1)
}

func TestAdapt_LowResistanceTurnsConfident(t *testing.T) {
	e := newTestEngine(t, 1)
	before := e.Personality().Trait(TraitDominance)

	notice := e.Adapt(0.1, 1)
	assert.NotEmpty(t, notice)
	assert.Equal(t, StrategyConfident, e.Personality().Strategy())
	assert.InDelta(t, 1.2, e.Personality().EscalationRate(), 1e-9)

	after := e.Personality().Trait(TraitDominance)
	assert.Greater(t, after, before)
	assert.LessOrEqual(t, after-before, DominanceNudge)

	assert.Empty(t, e.Adapt(0.1, 2), "no repeated notice without a change")
}

func TestAdapt_RateBounds(t *testing.T) {
	e := newTestEngine(t, 1)
	p := e.Personality()

	// Alternate strategies through cautious and confident many times.
	for i := 0; i < 40; i++ {
		for j := 0; j < 3; j++ {
			e.Adapt(0.95, i)
		}
		assert.GreaterOrEqual(t, p.EscalationRate(), MinEscalationRate)
	}
	p.Reset()
	for i := 0; i < 40; i++ {
		p.strategy = StrategyNormal
		e.Adapt(0.05, i)
		assert.LessOrEqual(t, p.EscalationRate(), MaxEscalationRate)
	}
	assert.LessOrEqual(t, len(p.Adaptations()), AdaptationLimit)
}

func TestAdapt_OscillationTurnsAdaptive(t *testing.T) {
	e := newTestEngine(t, 1)
	assert.Empty(t, e.Adapt(0.4, 1))
	assert.Empty(t, e.Adapt(0.9, 2))
	notice := e.Adapt(0.1, 3)
	assert.NotEmpty(t, notice)
	assert.Equal(t, StrategyAdaptive, e.Personality().Strategy())
	assert.Empty(t, e.Adapt(0.5, 4), "window still mixed, no further change")
}

func TestAdapt_SuccessRateTransitions(t *testing.T) {
	t.Run("cautious retreats after failures", func(t *testing.T) {
		e := newTestEngine(t, 1)
		p := e.Personality()
		e.Adapt(0.9, 0)
		require.Equal(t, StrategyCautious, p.Strategy())
		for i := 0; i < 6; i++ {
			e.RecordOutcome("invite", false)
		}
		subtletyBefore := p.Trait(TraitSubtlety)
		e.Adapt(0.6, 1)
		e.Adapt(0.6, 2)
		e.Adapt(0.6, 3)
		assert.Equal(t, StrategyRetreating, p.Strategy())
		assert.InDelta(t, subtletyBefore+SubtletyNudge, p.Trait(TraitSubtlety), 1e-9)
	})

	t.Run("confident escalates after success", func(t *testing.T) {
		traits := testTraits()
		traits[TraitDominance] = 0.9
		p, err := NewPersonality(traits)
		require.NoError(t, err)
		e, err := NewEngine(p, testTable(t), WithSource(NewSource(2)))
		require.NoError(t, err)

		e.Adapt(0.1, 0)
		require.Equal(t, StrategyConfident, p.Strategy())
		for i := 0; i < 6; i++ {
			e.RecordOutcome("persuade", true)
		}
		e.Adapt(0.5, 1)
		e.Adapt(0.5, 2)
		e.Adapt(0.5, 3)
		assert.Equal(t, StrategyAggressive, p.Strategy())
	})
}

func TestComputedCap_MonotoneInResistance(t *testing.T) {
	e := newTestEngine(t, 1)
	for _, s := range []Strategy{StrategyNormal, StrategyCautious, StrategyAggressive, StrategyRetreating} {
		e.Personality().strategy = s
		prev := MaxIntensity + 1
		for i := 0; i <= 100; i++ {
			c := e.ComputedCap(float64(i) / 100)
			assert.LessOrEqual(t, c, prev, "strategy %s resistance %d", s, i)
			assert.GreaterOrEqual(t, c, MinIntensity)
			prev = c
		}
	}
}

func TestComputedCap_Thresholds(t *testing.T) {
	e := newTestEngine(t, 1)
	tests := []struct {
		r    float64
		want int
	}{
		{1.5, 2}, {0.8, 2}, {0.79, 3}, {0.5, 3}, {0.2, 4}, {0.1, 5}, {-1, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ComputedCap(tt.r), "resistance %.2f", tt.r)
	}
}

func TestLocationCap(t *testing.T) {
	e := newTestEngine(t, 1)
	assert.Equal(t, 5, e.LocationCap(LocationOpen))
	assert.Equal(t, 2, e.LocationCap(LocationGuarded))
	assert.Equal(t, 2, e.LocationCap("basement"), "unknown location gets the most restrictive cap")

	e = newTestEngine(t, 1, WithLocationCaps(map[string]int{"hall": 4, "vault": 9}))
	assert.Equal(t, 5, e.LocationCap("vault"), "caps are clamped")
	assert.Equal(t, 4, e.LocationCap("nowhere"))
}

func TestAdvance_NeverExceedsCap(t *testing.T) {
	e := newTestEngine(t, 3)
	readings := []float64{0.0, 0.1, 0.1, 0.1, 0.1, 0.9, 0.85, 0.4, 0.0, 0.0, 0.0}
	for i, r := range readings {
		for _, loc := range []string{LocationOpen, LocationGuarded, "unknown"} {
			level := e.Advance(r, loc)
			assert.LessOrEqual(t, level, e.EffectiveCap(r, loc), "step %d at %s", i, loc)
			assert.GreaterOrEqual(t, level, MinIntensity)
		}
	}
}

func TestAdvance_ClimbsByRate(t *testing.T) {
	e := newTestEngine(t, 1)
	levels := []int{}
	for i := 0; i < 5; i++ {
		levels = append(levels, e.Advance(0.0, LocationOpen))
	}
	assert.Equal(t, []int{2, 3, 4, 5, 5}, levels)

	assert.Equal(t, 2, e.Advance(0.0, LocationGuarded), "level drops to a lower cap at once")
}

func TestSelectAction_RepetitionGuard(t *testing.T) {
	e := newTestEngine(t, 9)
	var picks []string
	for i := 0; i < 50; i++ {
		a, fallback := e.SelectAction(3)
		require.False(t, fallback)
		picks = append(picks, a.ID)
	}
	for i := 2; i < len(picks); i++ {
		assert.NotEqual(t, picks[i], picks[i-1], "pick %d repeats previous turn", i)
		assert.NotEqual(t, picks[i], picks[i-2], "pick %d repeats two turns ago", i)
	}
}

func TestSelectAction_GuardYieldsWhenPoolWouldEmpty(t *testing.T) {
	e := newTestEngine(t, 1)
	first, _ := e.SelectAction(1)
	second, fallback := e.SelectAction(1)
	assert.False(t, fallback)
	assert.Equal(t, "greet", first.ID)
	assert.Equal(t, "greet", second.ID, "only action in the pool is reused")
}

func TestSelectAction_FallbackOnEmptyPool(t *testing.T) {
	p, err := NewPersonality(testTraits())
	require.NoError(t, err)
	empty, err := NewActionTable()
	require.NoError(t, err)
	e, err := NewEngine(p, empty, WithSource(NewSource(1)), WithFallbackAction("pause"))
	require.NoError(t, err)

	a, fallback := e.SelectAction(5)
	assert.True(t, fallback)
	assert.Equal(t, "pause", a.ID)

	d := e.ChooseNextAction(0.5, turn.Context{Turn: 1, Location: LocationOpen})
	assert.True(t, d.Fallback)
	assert.Equal(t, "pause", d.Action.ID)
}

func TestSelectAction_OnlyTopThreeSampled(t *testing.T) {
	e := newTestEngine(t, 4)
	// Strong learned preferences push three actions to the top.
	for _, id := range []string{"greet", "joke", "invite"} {
		for i := 0; i < 5; i++ {
			e.RecordOutcome(id, true)
		}
	}
	for i := 0; i < 30; i++ {
		e.Personality().recent = nil
		a, _ := e.SelectAction(3)
		assert.Contains(t, []string{"greet", "joke", "invite"}, a.ID)
	}
}

func TestChooseNextAction_SeededReproducibility(t *testing.T) {
	run := func(seed uint64) []string {
		e := newTestEngine(t, seed)
		var out []string
		readings := []float64{0.9, 0.8, 0.6, 0.4, 0.3, 0.2, 0.1, 0.1, 0.5, 0.7}
		last := ""
		for i, r := range readings {
			tc := turn.Context{Turn: i, Location: LocationOpen, LastAction: last, Outcome: turn.OutcomeSuccess}
			if i%3 == 0 {
				tc.Outcome = turn.OutcomeFailure
			}
			d := e.ChooseNextAction(r, tc)
			last = d.Action.ID
			out = append(out, d.Action.ID+"/"+string(d.Strategy))
		}
		return out
	}

	a, b := run(42), run(42)
	assert.True(t, slices.Equal(a, b), "same seed must produce the same sequence")
}

func TestChooseNextAction_LearnsFromOutcome(t *testing.T) {
	e := newTestEngine(t, 1)
	e.ChooseNextAction(0.5, turn.Context{Turn: 1, LastAction: "joke", Outcome: turn.OutcomeSuccess})
	assert.Equal(t, 2, e.Personality().Preference("joke"))

	e.ChooseNextAction(0.5, turn.Context{Turn: 2, LastAction: "joke", Outcome: turn.OutcomeUnknown})
	assert.Equal(t, 2, e.Personality().Preference("joke"), "unknown outcomes are not learned")
}

func TestChooseNextAction_ClampsResistance(t *testing.T) {
	e := newTestEngine(t, 1)
	d := e.ChooseNextAction(3.5, turn.Context{Location: LocationOpen})
	assert.Equal(t, 1.0, d.Resistance)
	assert.Equal(t, StrategyCautious, d.Strategy)
	assert.LessOrEqual(t, d.Level, d.Cap)
}

func TestNewEngine_RequiresPersonality(t *testing.T) {
	_, err := NewEngine(nil, testTable(t))
	assert.True(t, errors.Is(err, ErrIncompletePersonality))
}

func TestNewActionTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		actions []Action
	}{
		{"missing id", []Action{{Intensity: 1}}},
		{"duplicate", []Action{{ID: "a", Intensity: 1}, {ID: "a", Intensity: 2}}},
		{"intensity low", []Action{{ID: "a", Intensity: 0}}},
		{"intensity high", []Action{{ID: "a", Intensity: 6}}},
		{"unknown stat", []Action{{ID: "a", Intensity: 1, Effects: map[stats.Name]int{"stamina": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewActionTable(tt.actions...)
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}

	table := testTable(t)
	assert.Equal(t, []string{"greet", "joke", "compliment", "invite", "persuade", "ultimatum"}, table.IDs())
	assert.Len(t, table.Eligible(2), 3)
	_, ok := table.Lookup("nope")
	assert.False(t, ok)
}

// Package profile loads the immutable game profile: the NPC trait profile,
// the action-intensity table, location caps and content texts.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/story-core/pkg/behavior"
	"github.com/jwebster45206/story-core/pkg/content"
	"github.com/jwebster45206/story-core/pkg/stats"
)

var ErrInvalidProfile = errors.New("invalid profile")

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

// Action is the YAML form of one action-table entry.
type Action struct {
	ID        string             `yaml:"id"`
	Intensity int                `yaml:"intensity"`           // 1 (mild) to 5 (strongest)
	Affinity  map[string]float64 `yaml:"affinity,omitempty"`  // trait -> score bonus when the trait is strong
	Effects   map[string]int     `yaml:"effects,omitempty"`   // stat -> delta applied when the action lands
	Temporary map[string]int     `yaml:"temporary,omitempty"` // stat -> decaying modifier added when the action lands
}

// Location describes one location tag.
type Location struct {
	Cap     int     `yaml:"cap"`     // escalation ceiling in this location
	Privacy float64 `yaml:"privacy"` // 0 public, 1 fully private
}

// ContentEntry is one text for the content table.
type ContentEntry struct {
	Action   string `yaml:"action"`
	Location string `yaml:"location,omitempty"` // empty matches any location
	Bucket   string `yaml:"bucket,omitempty"`   // high, medium, low; empty matches any
	Text     string `yaml:"text"`
}

// PlayerStart holds the starting gauges of the player entity.
type PlayerStart struct {
	Resistance int `yaml:"resistance"`
	Arousal    int `yaml:"arousal"`
}

// Profile is the complete configuration of a session.
type Profile struct {
	Name           string              `yaml:"name"`
	Archetype      string              `yaml:"archetype,omitempty"`       // preset trait set used when traits are omitted
	Traits         map[string]float64  `yaml:"traits,omitempty"`          // explicit traits override the archetype
	TraitJitter    float64             `yaml:"trait_jitter,omitempty"`    // max random perturbation per trait
	FallbackAction string              `yaml:"fallback_action,omitempty"` // used when no action is eligible
	Player         PlayerStart         `yaml:"player"`
	Actions        []Action            `yaml:"actions"`
	Locations      map[string]Location `yaml:"locations"`
	Content        []ContentEntry      `yaml:"content,omitempty"`
}

// Archetypes are preset trait profiles.
var Archetypes = map[string]map[string]float64{
	"balanced": uniformTraits(0.5),
	"dominant": withTraits(uniformTraits(0.4), map[string]float64{
		behavior.TraitDominance:   0.85,
		behavior.TraitPersistence: 0.75,
		behavior.TraitPatience:    0.25,
	}),
	"patient": withTraits(uniformTraits(0.4), map[string]float64{
		behavior.TraitPatience: 0.85,
		behavior.TraitSubtlety: 0.75,
	}),
	"charming": withTraits(uniformTraits(0.45), map[string]float64{
		behavior.TraitCharm:        0.85,
		behavior.TraitAdaptability: 0.75,
	}),
}

func uniformTraits(v float64) map[string]float64 {
	out := make(map[string]float64, len(behavior.DefaultTraits))
	for _, t := range behavior.DefaultTraits {
		out[t] = v
	}
	return out
}

func withTraits(base, overrides map[string]float64) map[string]float64 {
	maps.Copy(base, overrides)
	return base
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse strictly decodes YAML and validates the result. Unknown fields are
// rejected.
func Parse(data []byte) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate reports every problem in one error wrapping ErrInvalidProfile.
func (p *Profile) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, "  - "+fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(p.Name) == "" {
		add("name is required")
	}

	if p.Archetype != "" {
		if _, ok := Archetypes[p.Archetype]; !ok {
			add("unknown archetype %q", p.Archetype)
		}
	}
	traits := p.ResolvedTraits()
	if len(traits) == 0 {
		add("traits or archetype are required")
	}
	for _, name := range slices.Sorted(maps.Keys(traits)) {
		if v := traits[name]; v < 0 || v > 1 {
			add("trait %s=%.2f outside [0,1]", name, v)
		}
	}
	if p.TraitJitter < 0 || p.TraitJitter > 1 {
		add("trait_jitter %.2f outside [0,1]", p.TraitJitter)
	}

	if p.FallbackAction != "" && !validIDRegex.MatchString(p.FallbackAction) {
		add("fallback_action %q must be lowercase snake_case", p.FallbackAction)
	}
	if stats.Clamp(p.Player.Resistance) != p.Player.Resistance || stats.Clamp(p.Player.Arousal) != p.Player.Arousal {
		add("player gauges must lie in [%d,%d]", stats.MinValue, stats.MaxValue)
	}

	seen := make(map[string]bool, len(p.Actions))
	for i, a := range p.Actions {
		if !validIDRegex.MatchString(a.ID) {
			add("action %d id %q must be lowercase snake_case", i, a.ID)
		}
		if seen[a.ID] {
			add("duplicate action id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Intensity < behavior.MinIntensity || a.Intensity > behavior.MaxIntensity {
			add("action %q intensity %d outside [%d,%d]", a.ID, a.Intensity, behavior.MinIntensity, behavior.MaxIntensity)
		}
		for stat := range a.Effects {
			if err := stats.Validate(stats.Name(stat)); err != nil {
				add("action %q: %v", a.ID, err)
			}
		}
		for stat := range a.Temporary {
			if err := stats.Validate(stats.Name(stat)); err != nil {
				add("action %q: temporary: %v", a.ID, err)
			}
		}
	}

	for _, tag := range slices.Sorted(maps.Keys(p.Locations)) {
		loc := p.Locations[tag]
		if !validIDRegex.MatchString(tag) {
			add("location %q must be lowercase snake_case", tag)
		}
		if loc.Cap < behavior.MinIntensity || loc.Cap > behavior.MaxIntensity {
			add("location %q cap %d outside [%d,%d]", tag, loc.Cap, behavior.MinIntensity, behavior.MaxIntensity)
		}
		if loc.Privacy < 0 || loc.Privacy > 1 {
			add("location %q privacy %.2f outside [0,1]", tag, loc.Privacy)
		}
	}

	for i, c := range p.Content {
		if !seen[c.Action] && c.Action != p.Fallback() {
			add("content %d references unknown action %q", i, c.Action)
		}
		if c.Location != "" && c.Location != content.Any {
			if _, ok := p.Locations[c.Location]; !ok {
				add("content %d references unknown location %q", i, c.Location)
			}
		}
		switch content.Bucket(c.Bucket) {
		case "", content.Any, content.BucketHigh, content.BucketMedium, content.BucketLow:
		default:
			add("content %d has unknown bucket %q", i, c.Bucket)
		}
		if strings.TrimSpace(c.Text) == "" {
			add("content %d for %q has no text", i, c.Action)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n%s", ErrInvalidProfile, strings.Join(problems, "\n"))
	}
	return nil
}

// ResolvedTraits returns the explicit traits, or the archetype's traits when
// none are given.
func (p *Profile) ResolvedTraits() map[string]float64 {
	if len(p.Traits) > 0 {
		return maps.Clone(p.Traits)
	}
	if a, ok := Archetypes[p.Archetype]; ok {
		return maps.Clone(a)
	}
	return nil
}

// Fallback returns the fallback action id.
func (p *Profile) Fallback() string {
	if p.FallbackAction == "" {
		return behavior.DefaultFallbackAction
	}
	return p.FallbackAction
}

// ActionTable builds the behavior action table.
func (p *Profile) ActionTable() (*behavior.ActionTable, error) {
	actions := make([]behavior.Action, 0, len(p.Actions))
	for _, a := range p.Actions {
		actions = append(actions, behavior.Action{
			ID:        a.ID,
			Intensity: a.Intensity,
			Affinity:  maps.Clone(a.Affinity),
			Effects:   statDeltas(a.Effects),
			Temporary: statDeltas(a.Temporary),
		})
	}
	return behavior.NewActionTable(actions...)
}

func statDeltas(m map[string]int) map[stats.Name]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[stats.Name]int, len(m))
	for stat, d := range m {
		out[stats.Name(stat)] = d
	}
	return out
}

// LocationCaps returns location tag -> escalation cap.
func (p *Profile) LocationCaps() map[string]int {
	caps := make(map[string]int, len(p.Locations))
	for tag, loc := range p.Locations {
		caps[tag] = loc.Cap
	}
	return caps
}

// Privacy returns the privacy of a location, 0 when unknown.
func (p *Profile) Privacy(location string) float64 {
	return p.Locations[location].Privacy
}

// ContentTable builds a content table from the profile's texts.
func (p *Profile) ContentTable() *content.Table {
	t := content.NewTable()
	for _, c := range p.Content {
		t.Set(content.Key{
			ActionID: c.Action,
			Location: c.Location,
			Bucket:   content.Bucket(c.Bucket),
		}, c.Text)
	}
	return t
}

// Default returns the built-in profile used when no profile file is given.
func Default() *Profile {
	return &Profile{
		Name:           "default",
		Archetype:      "charming",
		TraitJitter:    0.1,
		FallbackAction: behavior.DefaultFallbackAction,
		Player:         PlayerStart{Resistance: stats.MaxValue, Arousal: stats.MinValue},
		Actions: []Action{
			{ID: "greet", Intensity: 1, Affinity: map[string]float64{behavior.TraitSubtlety: 0.3}, Effects: map[string]int{"resistance": -2}},
			{ID: "small_talk", Intensity: 1, Affinity: map[string]float64{behavior.TraitPatience: 0.3}, Effects: map[string]int{"resistance": -3, "arousal": 1}},
			{ID: "joke", Intensity: 2, Affinity: map[string]float64{behavior.TraitCharm: 0.3}, Effects: map[string]int{"resistance": -4, "arousal": 3}, Temporary: map[string]int{"resistance": -3}},
			{ID: "compliment", Intensity: 2, Affinity: map[string]float64{behavior.TraitCharm: 0.4}, Effects: map[string]int{"resistance": -5, "arousal": 4}, Temporary: map[string]int{"resistance": -4}},
			{ID: "ask_question", Intensity: 2, Affinity: map[string]float64{behavior.TraitIntelligence: 0.3}, Effects: map[string]int{"resistance": -4, "arousal": 2}},
			{ID: "share_story", Intensity: 3, Affinity: map[string]float64{behavior.TraitPatience: 0.3}, Effects: map[string]int{"resistance": -6, "arousal": 4}},
			{ID: "invite", Intensity: 3, Affinity: map[string]float64{behavior.TraitCharm: 0.3}, Effects: map[string]int{"resistance": -8, "arousal": 6}},
			{ID: "persuade", Intensity: 4, Affinity: map[string]float64{behavior.TraitIntelligence: 0.4}, Effects: map[string]int{"resistance": -10, "arousal": 6}},
			{ID: "insist", Intensity: 4, Affinity: map[string]float64{behavior.TraitPersistence: 0.3, behavior.TraitDominance: 0.3}, Effects: map[string]int{"resistance": -12, "arousal": 8}, Temporary: map[string]int{"resistance": 4}},
			{ID: "ultimatum", Intensity: 5, Affinity: map[string]float64{behavior.TraitDominance: 0.4}, Effects: map[string]int{"resistance": -15, "arousal": 10}},
		},
		Locations: map[string]Location{
			behavior.LocationOpen:    {Cap: 5, Privacy: 0.2},
			behavior.LocationGuarded: {Cap: 2, Privacy: 0},
			"secluded":               {Cap: 5, Privacy: 0.9},
		},
		Content: []ContentEntry{
			{Action: "greet", Text: "The NPC offers a greeting."},
			{Action: "small_talk", Text: "The NPC makes small talk."},
			{Action: "joke", Text: "The NPC tells a joke."},
			{Action: "joke", Bucket: string(content.BucketHigh), Text: "The NPC tries a joke to break the ice."},
			{Action: "compliment", Text: "The NPC pays a compliment."},
			{Action: "ask_question", Text: "The NPC asks a question."},
			{Action: "share_story", Text: "The NPC shares a story."},
			{Action: "invite", Text: "The NPC extends an invitation."},
			{Action: "invite", Location: behavior.LocationGuarded, Text: "The NPC suggests going somewhere quieter."},
			{Action: "persuade", Text: "The NPC makes a persuasive case."},
			{Action: "insist", Text: "The NPC insists."},
			{Action: "ultimatum", Text: "The NPC presses for an answer."},
			{Action: behavior.DefaultFallbackAction, Text: "The NPC waits."},
		},
	}
}

package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/story-core/pkg/behavior"
	"github.com/jwebster45206/story-core/pkg/profile"
	"github.com/jwebster45206/story-core/pkg/session"
	"github.com/jwebster45206/story-core/pkg/stats"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	turnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // teal
			Bold(true)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")) // purple

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // green
			PaddingLeft(2)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	faultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func renderHeader(p *profile.Profile, seed uint64) string {
	return titleStyle.Render(fmt.Sprintf("%s (seed %d)", p.Name, seed))
}

func renderTurn(res session.Result, width int) string {
	var b strings.Builder

	head := turnStyle.Render(fmt.Sprintf("Turn %d", res.Turn)) +
		dimStyle.Render(fmt.Sprintf(" @ %s", res.Location))
	b.WriteString(head)
	if res.Resisted {
		b.WriteString(dimStyle.Render(" (resisted)"))
	}
	b.WriteString("\n")

	d := res.Decision
	action := fmt.Sprintf("%s  level %d/%d  %s", d.Action.ID, d.Level, d.Cap, d.Strategy)
	if d.Fallback {
		action += " (fallback)"
	}
	b.WriteString(actionStyle.Render(action))
	b.WriteString("\n")

	if d.Notice != "" {
		b.WriteString(noticeStyle.Render(d.Notice))
		b.WriteString("\n")
	}

	// Leave room for the padding
	wrapped := wordwrap.String(res.Text, max(width-2, 10))
	b.WriteString(textStyle.Render(wrapped))
	b.WriteString("\n")

	b.WriteString(dimStyle.Render(fmt.Sprintf("resistance %d  arousal %d  %s",
		res.Resistance, res.Arousal, activeThresholds(res.Thresholds))))

	for _, c := range res.Crossings {
		state := "cleared"
		if c.Active {
			state = "reached"
		}
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(fmt.Sprintf("%s %s", c.Threshold, state)))
	}
	for _, f := range res.Faults {
		b.WriteString("\n")
		b.WriteString(faultStyle.Render(f))
	}
	return b.String()
}

func activeThresholds(t stats.Thresholds) string {
	flags := t.Map()
	var names []string
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		if flags[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func renderSummary(p behavior.PersonalitySummary, s stats.Summary) string {
	lines := []string{
		fmt.Sprintf("strategy     %s (rate %.2f, level %d)", p.Strategy, p.EscalationRate, p.Level),
		fmt.Sprintf("encounters   %d (%.0f%% success)", p.Encounters, p.SuccessRate*100),
		fmt.Sprintf("adaptations  %d", p.Adaptations),
		fmt.Sprintf("changes      %d (resistance %d, arousal %d)", s.TotalChanges, s.ResistanceLost, s.ArousalGained),
	}
	if len(p.Preferred) > 0 {
		lines = append(lines, "preferred    "+strings.Join(p.Preferred, ", "))
	}
	if len(p.Avoided) > 0 {
		lines = append(lines, "avoided      "+strings.Join(p.Avoided, ", "))
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

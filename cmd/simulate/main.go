package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jwebster45206/story-core/internal/config"
	"github.com/jwebster45206/story-core/internal/logger"
	"github.com/jwebster45206/story-core/pkg/profile"
	"github.com/jwebster45206/story-core/pkg/session"
)

func main() {
	turns := flag.Int("turns", 20, "number of turns to run")
	seed := flag.Uint64("seed", 1, "random seed")
	locations := flag.String("location", "open", "location tag, or a comma separated list cycled per turn")
	profilePath := flag.String("profile", "", "profile YAML (built-in profile when empty)")
	resistEvery := flag.Int("resist-every", 0, "attempt resistance every N turns (0 never)")
	resist := flag.String("resist", "soft", "resistance attempt strength: soft or firm")
	width := flag.Int("width", 72, "wrap width for content text")
	verbose := flag.Bool("v", false, "log engine decisions to stderr")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		log = logger.New(os.Stderr, &config.Config{LogLevel: slog.LevelDebug})
	}

	prof := profile.Default()
	if *profilePath != "" {
		p, err := profile.Load(*profilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load profile: %v\n", err)
			os.Exit(1)
		}
		prof = p
	}

	s, err := session.New(prof, session.WithSeed(*seed), session.WithLogger(log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}

	plan := Plan{
		Locations:   strings.Split(*locations, ","),
		ResistEvery: *resistEvery,
		Resist:      session.Resist(*resist),
	}
	if err := run(context.Background(), os.Stdout, s, plan, *turns, *width); err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}
}

// Plan scripts the player's side of a simulation.
type Plan struct {
	Locations   []string
	ResistEvery int
	Resist      session.Resist
}

// Input returns the player input for turn n, counting from 1.
func (p Plan) Input(n int) session.Input {
	in := session.Input{}
	if len(p.Locations) > 0 {
		in.Location = strings.TrimSpace(p.Locations[(n-1)%len(p.Locations)])
	}
	if p.ResistEvery > 0 && n%p.ResistEvery == 0 {
		in.Resist = p.Resist
	}
	return in
}

func run(ctx context.Context, w io.Writer, s *session.Session, plan Plan, turns, width int) error {
	fmt.Fprintln(w, renderHeader(s.Profile(), s.Seed()))
	for n := 1; n <= turns; n++ {
		res, err := s.Turn(ctx, plan.Input(n))
		if err != nil {
			return fmt.Errorf("turn %d: %w", n, err)
		}
		fmt.Fprintln(w, renderTurn(res, width))
	}
	fmt.Fprintln(w, renderSummary(s.Personality().Summary(), s.Stats().Summary()))
	return nil
}

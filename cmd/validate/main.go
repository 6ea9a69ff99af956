package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jwebster45206/story-core/pkg/profile"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <profile.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &ProfileValidator{}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	for _, w := range validator.warnings {
		fmt.Println("warning:", strings.TrimSpace(w))
	}
	fmt.Println("Profile file is valid!")
}

// ProfileValidator checks a profile file beyond what loading enforces.
// Errors fail validation; warnings describe profiles that load but play badly.
type ProfileValidator struct {
	errors   []string
	warnings []string
}

func (v *ProfileValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	ext := filepath.Ext(baseName)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("profile file must have .yaml or .yml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ext)
	if !isValidProfileFilename(nameWithoutExt) {
		return fmt.Errorf("profile filename '%s' must be lowercase snake_case (e.g., shy_clerk.yaml, not shy-clerk.yaml or ShyClerk.yaml)", baseName)
	}

	v.errors = nil
	v.warnings = nil

	// Load decodes strictly and runs the profile's own validation
	p, err := profile.Load(filename)
	if err != nil {
		return err
	}

	v.validateProfile(p)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *ProfileValidator) validateProfile(p *profile.Profile) {
	if len(p.Actions) == 0 {
		v.addError("profile has no actions; the NPC could only ever fall back")
		return
	}

	v.validateCoverage(p)
	v.validateCaps(p)
}

// validateCoverage warns about actions that can only ever show their id.
func (v *ProfileValidator) validateCoverage(p *profile.Profile) {
	covered := make(map[string]bool)
	for _, c := range p.Content {
		covered[c.Action] = true
	}

	for _, a := range p.Actions {
		if !covered[a.ID] {
			v.addWarning(fmt.Sprintf("action '%s' has no content text", a.ID))
		}
	}
	if !covered[p.Fallback()] {
		v.addWarning(fmt.Sprintf("fallback action '%s' has no content text", p.Fallback()))
	}
}

// validateCaps checks that every location cap leaves at least one action.
func (v *ProfileValidator) validateCaps(p *profile.Profile) {
	lowest := slices.MinFunc(p.Actions, func(a, b profile.Action) int {
		return a.Intensity - b.Intensity
	})

	for _, tag := range slices.Sorted(maps.Keys(p.Locations)) {
		if loc := p.Locations[tag]; loc.Cap < lowest.Intensity {
			v.addWarning(fmt.Sprintf("location '%s' cap %d is below every action intensity; the NPC always falls back there", tag, loc.Cap))
		}
	}
	if len(p.Locations) == 0 {
		v.addWarning("profile has no locations; built-in location caps apply")
	}
}

func (v *ProfileValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func (v *ProfileValidator) addWarning(msg string) {
	v.warnings = append(v.warnings, "  - "+msg)
}

var validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidProfileFilename(name string) bool {
	// Allow 'x.' prefix for experimental profiles
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}

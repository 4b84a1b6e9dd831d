// Package passport loads operator-authored YAML profiles that bound what a
// controller run may touch: which chords, which actuators, and how hard it
// may push them. A run without a passport falls back to the observe-max
// profile, which can see everything and change nothing.
package passport

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trainguard/trainguard/guards"
	"github.com/trainguard/trainguard/knobs"
	"github.com/trainguard/trainguard/policy"
)

// Limits bound the rate and size of knob changes under a passport.
type Limits struct {
	// MinInterval is the per-knob cooldown, e.g. "30s".
	MinInterval string `yaml:"min_interval"`
	// MaxDeltaPerStep bounds a single change; 0 disables the bound.
	MaxDeltaPerStep int `yaml:"max_delta_per_step"`
	// RelockStableIntervals is the quiet-tick count required before relock.
	RelockStableIntervals int `yaml:"relock_stable_intervals"`
}

// Passport is one named operating profile.
type Passport struct {
	Name string `yaml:"name"`
	// Mode is OBSERVE_ONLY or CLOSED_LOOP.
	Mode string `yaml:"mode"`
	// AllowedChords limits plannable chord ids; empty means all cataloged.
	AllowedChords []string `yaml:"allowed_chords"`
	// AllowedActuators limits changeable knobs; empty means all registered.
	AllowedActuators []string `yaml:"allowed_actuators"`
	Limits           Limits   `yaml:"limits"`
}

// ObserveMax is the built-in fallback profile: full visibility, no writes.
func ObserveMax() Passport {
	return Passport{
		Name: "observe-max",
		Mode: "OBSERVE_ONLY",
		Limits: Limits{
			MinInterval:           "30s",
			MaxDeltaPerStep:       0,
			RelockStableIntervals: 3,
		},
	}
}

// Load reads and validates a passport file against the actuator registry
// and chord catalog.
func Load(path string, registry *knobs.Registry, catalog *policy.Catalog) (Passport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Passport{}, fmt.Errorf("read passport: %w", err)
	}
	var p Passport
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Passport{}, fmt.Errorf("parse passport: %w", err)
	}
	if errs := p.Validate(registry, catalog); len(errs) > 0 {
		return Passport{}, fmt.Errorf("invalid passport %q: %s", path, errs[0])
	}
	return p, nil
}

// Validate returns every problem with the passport, sorted, empty when
// valid.
func (p Passport) Validate(registry *knobs.Registry, catalog *policy.Catalog) []string {
	var errs []string
	if p.Name == "" {
		errs = append(errs, "missing name")
	}
	switch p.Mode {
	case "OBSERVE_ONLY", "CLOSED_LOOP":
	case "":
		errs = append(errs, "missing mode")
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", p.Mode))
	}
	if registry != nil {
		for _, name := range p.AllowedActuators {
			if registry.Get(name) == nil {
				errs = append(errs, fmt.Sprintf("unknown actuator %q", name))
			}
		}
	}
	if catalog != nil {
		index := catalog.Index()
		for _, id := range p.AllowedChords {
			if _, ok := index[id]; !ok {
				errs = append(errs, fmt.Sprintf("unknown chord %q", id))
			}
		}
	}
	if p.Limits.MinInterval != "" {
		if d, err := time.ParseDuration(p.Limits.MinInterval); err != nil {
			errs = append(errs, fmt.Sprintf("invalid min_interval %q", p.Limits.MinInterval))
		} else if d < 0 {
			errs = append(errs, "min_interval must not be negative")
		}
	}
	if p.Limits.MaxDeltaPerStep < 0 {
		errs = append(errs, "max_delta_per_step must not be negative")
	}
	if p.Limits.RelockStableIntervals < 0 {
		errs = append(errs, "relock_stable_intervals must not be negative")
	}
	sort.Strings(errs)
	return errs
}

// GuardConfig translates the passport limits into guardrail settings.
func (p Passport) GuardConfig() guards.Config {
	cfg := guards.Config{
		MaxDeltaPerStep:       p.Limits.MaxDeltaPerStep,
		RelockStableIntervals: p.Limits.RelockStableIntervals,
	}
	if len(p.AllowedActuators) > 0 {
		cfg.Allowlist = append([]string(nil), p.AllowedActuators...)
	}
	if p.Limits.MinInterval != "" {
		if d, err := time.ParseDuration(p.Limits.MinInterval); err == nil {
			cfg.MinInterval = d
		}
	}
	return cfg
}

// ChordAllowed reports whether the passport permits the chord id. An empty
// allow list permits everything the catalog carries.
func (p Passport) ChordAllowed(id string) bool {
	if len(p.AllowedChords) == 0 {
		return true
	}
	for _, allowed := range p.AllowedChords {
		if allowed == id {
			return true
		}
	}
	return false
}

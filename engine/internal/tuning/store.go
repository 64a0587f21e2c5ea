// Package tuning hosts the operator-adjustable constants: RETENTION_MS,
// STARVE_MS, DRAIN_MAX, and the default warm-hold. Values live in a YAML
// file and can be hot-reloaded via WatchTuningFile without a process
// restart.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Constants holds one coherent set of tuning values.
type Constants struct {
	RetentionMS      int64 `yaml:"retention_ms"`
	StarveMS         int64 `yaml:"starve_ms"`
	DrainMax         int   `yaml:"drain_max"`
	DefaultWarmHoldMS int64 `yaml:"default_warm_hold_ms"`
}

// Defaults returns the v1 defaults referenced by the scenario tests.
func Defaults() Constants {
	return Constants{
		RetentionMS:       5000,
		StarveMS:          2000,
		DrainMax:          0, // 0 = unbounded full drain, the v1 default
		DefaultWarmHoldMS: 30000,
	}
}

func (c Constants) Validate() error {
	if c.RetentionMS < 0 || c.StarveMS < 0 || c.DrainMax < 0 || c.DefaultWarmHoldMS < 0 {
		return fmt.Errorf("tuning: constants must be non-negative: %+v", c)
	}
	return nil
}

// Store holds the current tuning Constants, loadable from a YAML file.
// It has no method that writes the file back.
type Store struct {
	path    string
	current Constants
}

// NewStore returns a Store seeded with Defaults().
func NewStore(path string) *Store {
	return &Store{path: path, current: Defaults()}
}

// NewStoreWithConstants returns a Store seeded with c instead of
// Defaults(), for embedders that supply tuning values through their own
// configuration rather than a YAML file. path may still be set so a later
// WatchTuningFile call can hot-reload overrides from disk.
func NewStoreWithConstants(path string, c Constants) *Store {
	return &Store{path: path, current: c}
}

// Load reads path and replaces the current constants if the file parses
// and validates. The file is optional: a missing file leaves the current
// (default) constants in place.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tuning: read %s: %w", s.path, err)
	}
	var c Constants
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("tuning: parse %s: %w", s.path, err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	s.current = c
	return nil
}

// Current returns the active constants.
func (s *Store) Current() Constants {
	return s.current
}

// Set replaces the active constants outright. Used by the core loop to
// apply a validated update_tuning command; callers are responsible for
// Validate()-ing c first.
func (s *Store) Set(c Constants) {
	s.current = c
}

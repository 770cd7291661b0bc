package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override adjusts a built-in strategy from YAML.
type Override struct {
	ID              string   `yaml:"id"`
	Enabled         *bool    `yaml:"enabled"`
	ExpectedWinRate *float64 `yaml:"expected_win_rate"`
	Description     string   `yaml:"description"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	TradingModes map[string]TradingMode `yaml:"trading_modes"`
	RiskModes    map[string]RiskMode    `yaml:"risk_modes"`
	Strategies   []Override             `yaml:"strategies"`
}

// LoadConfig reads mode presets and strategy overrides from a YAML file.
func LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &file, nil
}

func (f *ConfigFile) validate() error {
	for name, tm := range f.TradingModes {
		if tm.MinConfidence < 0 || tm.MinConfidence > 1 {
			return fmt.Errorf("trading mode %q: min_confidence must be in [0,1]", name)
		}
		if tm.Cooldown < 0 || tm.MinConditions < 0 {
			return fmt.Errorf("trading mode %q: cooldown and min_conditions must be >= 0", name)
		}
	}
	for name, rm := range f.RiskModes {
		if rm.Multiplier < 1 {
			return fmt.Errorf("risk mode %q: multiplier must be >= 1", name)
		}
		if rm.MaxSteps < 0 {
			return fmt.Errorf("risk mode %q: max_steps must be >= 0", name)
		}
	}
	for _, s := range f.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategy override without id")
		}
		if s.ExpectedWinRate != nil && (*s.ExpectedWinRate < 0 || *s.ExpectedWinRate > 1) {
			return fmt.Errorf("strategy %q: expected_win_rate must be in [0,1]", s.ID)
		}
	}
	return nil
}

// ApplyConfig merges file into the registry. Presets are added or replaced by
// name; overrides for unknown ids are rejected.
func (r *Registry) ApplyConfig(file *ConfigFile) error {
	if file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range file.Strategies {
		if _, ok := r.entries[s.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStrategy, s.ID)
		}
	}

	for name, tm := range file.TradingModes {
		r.modes.Trading[name] = tm
	}
	for name, rm := range file.RiskModes {
		r.modes.Risk[name] = rm
	}
	for _, s := range file.Strategies {
		e := r.entries[s.ID]
		if s.Enabled != nil {
			e.info.Enabled = *s.Enabled
		}
		if s.ExpectedWinRate != nil {
			e.info.ExpectedWinRate = *s.ExpectedWinRate
		}
		if s.Description != "" {
			e.info.Description = s.Description
		}
		r.entries[s.ID] = e
	}
	return nil
}

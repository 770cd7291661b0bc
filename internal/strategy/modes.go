package strategy

import "fmt"

// TradingMode gates how selective a strategy is.
type TradingMode struct {
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	Cooldown      int     `json:"cooldown" yaml:"cooldown"` // ticks analyzed between signals
	MinConditions int     `json:"min_conditions" yaml:"min_conditions"`
}

// RiskMode selects the session's loss-recovery envelope.
type RiskMode struct {
	Martingale bool    `json:"martingale" yaml:"martingale"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	MaxSteps   int     `json:"max_steps" yaml:"max_steps"`
}

// Modes holds the named presets. A registry owns one copy so YAML overrides
// never leak between registries.
type Modes struct {
	Trading map[string]TradingMode `yaml:"trading_modes"`
	Risk    map[string]RiskMode    `yaml:"risk_modes"`
}

// DefaultModes returns the stock presets.
func DefaultModes() Modes {
	return Modes{
		Trading: map[string]TradingMode{
			"lowRisk":  {MinConfidence: 0.90, Cooldown: 20, MinConditions: 4},
			"accurate": {MinConfidence: 0.80, Cooldown: 14, MinConditions: 4},
			"balanced": {MinConfidence: 0.70, Cooldown: 10, MinConditions: 3},
			"faster":   {MinConfidence: 0.60, Cooldown: 6, MinConditions: 2},
		},
		Risk: map[string]RiskMode{
			"fixed":        {Martingale: false, Multiplier: 1.0, MaxSteps: 0},
			"conservative": {Martingale: true, Multiplier: 1.5, MaxSteps: 2},
			"optimized":    {Martingale: true, Multiplier: 2.0, MaxSteps: 3},
			"aggressive":   {Martingale: true, Multiplier: 2.5, MaxSteps: 5},
		},
	}
}

// TradingMode looks up a trading preset by name.
func (m Modes) TradingMode(name string) (TradingMode, error) {
	tm, ok := m.Trading[name]
	if !ok {
		return TradingMode{}, fmt.Errorf("unknown trading mode %q", name)
	}
	return tm, nil
}

// RiskMode looks up a risk preset by name.
func (m Modes) RiskMode(name string) (RiskMode, error) {
	rm, ok := m.Risk[name]
	if !ok {
		return RiskMode{}, fmt.Errorf("unknown risk mode %q", name)
	}
	return rm, nil
}

func (m Modes) clone() Modes {
	out := Modes{
		Trading: make(map[string]TradingMode, len(m.Trading)),
		Risk:    make(map[string]RiskMode, len(m.Risk)),
	}
	for k, v := range m.Trading {
		out.Trading[k] = v
	}
	for k, v := range m.Risk {
		out.Risk[k] = v
	}
	return out
}

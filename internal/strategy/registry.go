package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownStrategy is returned when an id is not registered or is disabled.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Factory builds a fresh provider for one session.
type Factory func(mode TradingMode) Provider

type entry struct {
	info    Info
	factory Factory
}

// Registry maps strategy ids to factories plus the mode presets they are built with.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	modes   Modes
}

// NewRegistry returns an empty registry with the stock mode presets.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		modes:   DefaultModes(),
	}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(info Info, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.ID] = entry{info: info, factory: f}
}

// New builds a provider for id gated by the named trading mode.
func (r *Registry) New(id, tradingMode string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !e.info.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	mode, err := r.modes.TradingMode(tradingMode)
	if err != nil {
		return nil, err
	}
	return e.factory(mode), nil
}

// Has reports whether id is registered and enabled.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.info.Enabled
}

// Info returns the metadata of one strategy.
func (r *Registry) Info(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.info, ok
}

// List returns every registered strategy sorted by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Modes returns a copy of the current presets.
func (r *Registry) Modes() Modes {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modes.clone()
}

func ruleFactory(id string, minLength int, f formula) Factory {
	return func(mode TradingMode) Provider {
		return newRule(id, minLength, f, mode)
	}
}

// builtins lists the in-process strategies.
var builtins = []struct {
	info      Info
	minLength int
	eval      formula
}{
	{Info{ID: "alpha_bot_1", Name: "Alpha Bot 1", Tier: "FREE", Description: "SMA trend with tick majority", ExpectedWinRate: 0.72}, 15, alphaBot1},
	{Info{ID: "alpha_bot_2", Name: "Alpha Bot 2", Tier: "FREE", Description: "support/resistance reversal", ExpectedWinRate: 0.74}, 30, alphaBot2},
	{Info{ID: "alpha_bot_3", Name: "Alpha Bot 3", Tier: "FREE", Description: "EMA momentum with volatility band", ExpectedWinRate: 0.71}, 25, alphaBot3},
	{Info{ID: "alpha_mind", Name: "Alpha Mind", Tier: "VIP", Description: "RSI, EMA and digit parity composite", ExpectedWinRate: 0.78}, 30, alphaMind},
	{Info{ID: "quantum_trader", Name: "Quantum Trader", Tier: "VIP", Description: "five-indicator poll", ExpectedWinRate: 0.80}, 40, quantumTrader},
	{Info{ID: "titan_core", Name: "Titan Core", Tier: "VIP", Description: "low-volatility trend filter", ExpectedWinRate: 0.79}, 30, titanCore},
	{Info{ID: "alpha_pulse", Name: "Alpha Pulse", Tier: "VIP", Description: "acceleration pulse", ExpectedWinRate: 0.77}, 20, alphaPulse},
	{Info{ID: "alpha_smart", Name: "Alpha Smart", Tier: "VIP", Description: "micro-trend scalping", ExpectedWinRate: 0.76}, 15, alphaSmart},
	{Info{ID: "alpha_analytics", Name: "Alpha Analytics", Tier: "VIP", Description: "z-score mean reversion", ExpectedWinRate: 0.78}, 25, alphaAnalytics},
	{Info{ID: "alpha_sniper", Name: "Alpha Sniper", Tier: "VIP", Description: "four-confirmation entry", ExpectedWinRate: 0.82}, 50, alphaSniper},
	{Info{ID: "mega_alpha_1", Name: "Mega Alpha 1", Tier: "PREMIUM", Description: "weighted indicator blend", ExpectedWinRate: 0.84}, 40, megaAlpha1},
	{Info{ID: "mega_alpha_2", Name: "Mega Alpha 2", Tier: "PREMIUM", Description: "win-rate adaptive trend", ExpectedWinRate: 0.86}, 35, megaAlpha2},
	{Info{ID: "mega_alpha_3", Name: "Mega Alpha 3", Tier: "PREMIUM", Description: "three-layer EMA alignment", ExpectedWinRate: 0.85}, 50, megaAlpha3},
	{Info{ID: "alpha_elite", Name: "Alpha Elite", Tier: "PREMIUM", Description: "run exhaustion reversal", ExpectedWinRate: 0.88}, 20, alphaElite},
	{Info{ID: "alpha_nexus", Name: "Alpha Nexus", Tier: "PREMIUM", Description: "five-strategy consensus", ExpectedWinRate: 0.87}, 50, alphaNexus},
}

// DefaultRegistry returns a registry with every built-in strategy enabled.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, b := range builtins {
		info := b.info
		info.MinLength = b.minLength
		info.Enabled = true
		r.Register(info, ruleFactory(info.ID, b.minLength, b.eval))
	}
	return r
}

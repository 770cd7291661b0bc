package strategy

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func fixedVote(v vote) formula {
	return func([]float64, stats) vote { return v }
}

func TestAnalyzeSkipsShortWindow(t *testing.T) {
	reg := DefaultRegistry()
	for _, info := range reg.List() {
		p, err := reg.New(info.ID, "faster")
		if err != nil {
			t.Fatalf("New(%s) error: %v", info.ID, err)
		}
		sig := p.Analyze(ramp(info.MinLength-1, 100, 0.01))
		if !sig.IsSkip() || sig.Reason != "warming_up" {
			t.Fatalf("%s: signal=%+v, expected warming_up skip", info.ID, sig)
		}
	}
}

func TestFormulasTolerateMinimumWindow(t *testing.T) {
	for _, b := range builtins {
		w := make([]float64, b.minLength)
		for i := range w {
			w[i] = 100 + math.Sin(float64(i))*0.3
		}
		// Must not panic.
		_ = b.eval(w, stats{winRate: 0.5})
	}
}

func TestCooldownCountsAnalyzedTicks(t *testing.T) {
	r := newRule("test", 1, fixedVote(vote{dir: Call, met: 2, total: 2}),
		TradingMode{MinConfidence: 0.6, Cooldown: 3, MinConditions: 2})
	w := []float64{1, 2}

	want := []bool{true, false, false, true, false, false, true}
	for i, fire := range want {
		sig := r.Analyze(w)
		if sig.IsSkip() == fire {
			t.Fatalf("tick %d: signal=%+v, expected fire=%v", i+1, sig, fire)
		}
		if !fire && sig.Reason != "cooldown" {
			t.Fatalf("tick %d: reason=%q, expected cooldown", i+1, sig.Reason)
		}
	}

	r.Reset()
	if sig := r.Analyze(w); sig.IsSkip() {
		t.Fatalf("after Reset signal=%+v, expected fire", sig)
	}
}

func TestTradingModeGating(t *testing.T) {
	modes := DefaultModes()
	tests := []struct {
		name   string
		mode   string
		v      vote
		fire   bool
		reason string
	}{
		{"faster accepts two of four", "faster", vote{Call, 2, 4}, true, ""},
		{"balanced wants three conditions", "balanced", vote{Call, 2, 4}, false, "conditions"},
		{"accurate wants four conditions", "accurate", vote{Put, 3, 4}, false, "conditions"},
		{"accurate accepts full house", "accurate", vote{Put, 4, 4}, true, ""},
		{"lowRisk accepts 0.90", "lowRisk", vote{Call, 4, 4}, true, ""},
		{"lowRisk rejects below 0.90", "lowRisk", vote{Call, 4, 5}, false, "confidence"},
		{"single condition formula", "lowRisk", vote{Call, 1, 1}, true, ""},
		{"no setup", "faster", noVote, false, "no_setup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, err := modes.TradingMode(tt.mode)
			if err != nil {
				t.Fatalf("TradingMode(%s) error: %v", tt.mode, err)
			}
			sig := newRule("test", 1, fixedVote(tt.v), tm).Analyze([]float64{1})
			if sig.IsSkip() == tt.fire {
				t.Fatalf("signal=%+v, expected fire=%v", sig, tt.fire)
			}
			if tt.fire {
				if sig.Direction != tt.v.dir {
					t.Fatalf("Direction=%s, expected %s", sig.Direction, tt.v.dir)
				}
				if want := confidence(tt.v.met, tt.v.total); sig.Confidence != want {
					t.Fatalf("Confidence=%v, expected %v", sig.Confidence, want)
				}
			} else if sig.Reason != tt.reason {
				t.Fatalf("reason=%q, expected %q", sig.Reason, tt.reason)
			}
		})
	}
}

func TestConfidenceRange(t *testing.T) {
	if got := confidence(0, 4); got != 0.55 {
		t.Fatalf("confidence(0,4)=%v, expected 0.55", got)
	}
	if got := confidence(4, 4); math.Abs(got-0.90) > 1e-12 {
		t.Fatalf("confidence(4,4)=%v, expected 0.90", got)
	}
}

func TestAlphaBot1FollowsTrend(t *testing.T) {
	reg := DefaultRegistry()

	up, err := reg.New("alpha_bot_1", "faster")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if sig := up.Analyze(ramp(20, 100, 0.01)); sig.Direction != Call {
		t.Fatalf("rising window signal=%+v, expected CALL", sig)
	}

	down, _ := reg.New("alpha_bot_1", "faster")
	if sig := down.Analyze(ramp(20, 100, -0.01)); sig.Direction != Put {
		t.Fatalf("falling window signal=%+v, expected PUT", sig)
	}
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()

	list := reg.List()
	if len(list) != 15 {
		t.Fatalf("len(List)=%d, expected 15", len(list))
	}
	tiers := map[string]int{}
	for i, info := range list {
		tiers[info.Tier]++
		if i > 0 && list[i-1].ID >= info.ID {
			t.Fatalf("List not sorted at %s", info.ID)
		}
	}
	if tiers["FREE"] != 3 || tiers["VIP"] != 7 || tiers["PREMIUM"] != 5 {
		t.Fatalf("tiers=%v, expected FREE=3 VIP=7 PREMIUM=5", tiers)
	}

	if _, err := reg.New("nope", "faster"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("New(nope) error=%v, expected ErrUnknownStrategy", err)
	}
	if _, err := reg.New("alpha_bot_1", "reckless"); err == nil {
		t.Fatalf("New with unknown mode succeeded, expected error")
	}
	if !reg.Has("alpha_nexus") {
		t.Fatalf("Has(alpha_nexus)=false, expected true")
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	body := `
trading_modes:
  scalper:
    min_confidence: 0.55
    cooldown: 1
    min_conditions: 1
risk_modes:
  conservative:
    martingale: true
    multiplier: 1.2
    max_steps: 1
strategies:
  - id: alpha_bot_1
    enabled: false
  - id: alpha_mind
    expected_win_rate: 0.6
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	file, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	reg := DefaultRegistry()
	if err := reg.ApplyConfig(file); err != nil {
		t.Fatalf("ApplyConfig error: %v", err)
	}

	if reg.Has("alpha_bot_1") {
		t.Fatalf("alpha_bot_1 still enabled")
	}
	if _, err := reg.New("alpha_bot_1", "faster"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("New(disabled) error=%v, expected ErrUnknownStrategy", err)
	}
	if info, _ := reg.Info("alpha_mind"); info.ExpectedWinRate != 0.6 {
		t.Fatalf("ExpectedWinRate=%v, expected 0.6", info.ExpectedWinRate)
	}
	if _, err := reg.New("alpha_bot_2", "scalper"); err != nil {
		t.Fatalf("New with custom mode error: %v", err)
	}
	rm, err := reg.Modes().RiskMode("conservative")
	if err != nil || rm.Multiplier != 1.2 || rm.MaxSteps != 1 {
		t.Fatalf("conservative=%+v (%v), expected multiplier 1.2 steps 1", rm, err)
	}
	// Presets not named in the file survive.
	if _, err := reg.Modes().TradingMode("lowRisk"); err != nil {
		t.Fatalf("lowRisk lost after ApplyConfig: %v", err)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"multiplier below one", "risk_modes:\n  x:\n    multiplier: 0.5\n"},
		{"confidence above one", "trading_modes:\n  x:\n    min_confidence: 1.5\n"},
		{"override without id", "strategies:\n  - enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Fatalf("LoadConfig succeeded, expected error")
			}
		})
	}

	reg := DefaultRegistry()
	if err := reg.ApplyConfig(&ConfigFile{Strategies: []Override{{ID: "ghost"}}}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("ApplyConfig(ghost) error=%v, expected ErrUnknownStrategy", err)
	}
}

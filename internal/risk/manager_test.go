package risk

import (
	"math"
	"testing"
)

func TestRecordTradeKeepsNetEqualToGrossDifference(t *testing.T) {
	mgr := NewInMemory(RiskConfig{ProfitTarget: 100, LossLimit: 100, MinBalance: 0.35})

	trades := []struct {
		profit float64
		won    bool
	}{
		{-1.00, false},
		{-1.47, false},
		{2.64, true},
		{-0.35, false},
		{0.31, true},
		{0.31, true},
	}
	for _, tr := range trades {
		mgr.RecordTrade(tr.profit, tr.won)
	}

	m := mgr.GetMetrics()
	if got := math.Round((m.GrossWin-m.GrossLoss)*100) / 100; got != m.NetBalance {
		t.Fatalf("NetBalance=%v, expected GrossWin-GrossLoss=%v", m.NetBalance, got)
	}
	if m.NetBalance != 0.44 {
		t.Fatalf("NetBalance=%v, expected 0.44", m.NetBalance)
	}
	if m.Wins+m.Losses != len(trades) || m.TotalTrades != len(trades) {
		t.Fatalf("wins+losses=%d total=%d, expected %d", m.Wins+m.Losses, m.TotalTrades, len(trades))
	}
	if m.MaxConsecutiveLosses != 2 {
		t.Fatalf("MaxConsecutiveLosses=%d, expected 2", m.MaxConsecutiveLosses)
	}
	if m.MaxConsecutiveWins != 2 || m.ConsecutiveWins != 2 {
		t.Fatalf("win streaks=%d/%d, expected 2/2", m.ConsecutiveWins, m.MaxConsecutiveWins)
	}
	if m.LossSinceLastWin != 0 {
		t.Fatalf("LossSinceLastWin=%v, expected 0", m.LossSinceLastWin)
	}
}

func TestLossSideStopIgnoresProfitableNet(t *testing.T) {
	mgr := NewInMemory(RiskConfig{ProfitTarget: 50, LossLimit: 5, MinBalance: 0.35, StopPolicy: StopPolicyValue})
	mgr.RecordTrade(10, true)

	ok, reason := mgr.MayOperate(100)
	if !ok {
		t.Fatalf("MayOperate=false (%s), expected true with net +10 and no loss since last win", reason)
	}

	// A drawdown smaller than the limit keeps the session alive even though
	// abs(net) would exceed it at other points.
	mgr.RecordTrade(-4.99, false)
	if stop, reason := mgr.ShouldStop(); stop {
		t.Fatalf("ShouldStop=true (%s), expected false", reason)
	}
}

func TestStopConditions(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RiskConfig
		trades     []float64 // sign decides win/loss
		balance    float64
		wantOK     bool
		wantReason string
	}{
		{
			name:       "take profit",
			cfg:        RiskConfig{ProfitTarget: 2, LossLimit: 5, MinBalance: 0.35},
			trades:     []float64{1.2, 0.8},
			balance:    100,
			wantOK:     false,
			wantReason: ReasonTakeProfit,
		},
		{
			name:       "loss since last win reaches limit",
			cfg:        RiskConfig{ProfitTarget: 20, LossLimit: 5, MinBalance: 0.35},
			trades:     []float64{3, -2, -3},
			balance:    100,
			wantOK:     false,
			wantReason: ReasonStopLoss,
		},
		{
			name:    "win resets loss since last win",
			cfg:     RiskConfig{ProfitTarget: 20, LossLimit: 5, MinBalance: 0.35},
			trades:  []float64{-4, 1, -4},
			balance: 100,
			wantOK:  true,
		},
		{
			name:       "consecutive losses policy",
			cfg:        RiskConfig{ProfitTarget: 20, LossLimit: 0.5, MinBalance: 0.35, StopPolicy: StopPolicyConsecutiveLosses, MaxConsecutiveLosses: 3},
			trades:     []float64{-1, -1, -1},
			balance:    100,
			wantOK:     false,
			wantReason: ReasonConsecutiveLosses,
		},
		{
			name:    "consecutive policy ignores value limit",
			cfg:     RiskConfig{ProfitTarget: 20, LossLimit: 0.5, MinBalance: 0.35, StopPolicy: StopPolicyConsecutiveLosses, MaxConsecutiveLosses: 3},
			trades:  []float64{-1, -1},
			balance: 100,
			wantOK:  true,
		},
		{
			name:       "balance below minimum",
			cfg:        RiskConfig{ProfitTarget: 20, LossLimit: 5, MinBalance: 0.35},
			balance:    0.34,
			wantOK:     false,
			wantReason: ReasonLowBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewInMemory(tt.cfg)
			for _, p := range tt.trades {
				mgr.RecordTrade(p, p > 0)
			}
			ok, reason := mgr.MayOperate(tt.balance)
			if ok != tt.wantOK {
				t.Fatalf("MayOperate=%v (%s), expected %v", ok, reason, tt.wantOK)
			}
			if reason != tt.wantReason {
				t.Fatalf("reason=%q, expected %q", reason, tt.wantReason)
			}
		})
	}
}

func TestPreventiveStop(t *testing.T) {
	mgr := NewInMemory(RiskConfig{ProfitTarget: 2, LossLimit: 5, MinBalance: 0.35})

	tests := []struct {
		accLoss, stake float64
		want           bool
	}{
		{4.00, 2.00, true},
		{4.00, 0.99, false},
		{2.50, 2.50, false},
		{0, 5.01, true},
	}
	for _, tt := range tests {
		stop, reason := mgr.PreventiveStop(tt.accLoss, tt.stake)
		if stop != tt.want {
			t.Fatalf("PreventiveStop(%v, %v)=%v, expected %v", tt.accLoss, tt.stake, stop, tt.want)
		}
		if stop && reason != ReasonPreventiveStop {
			t.Fatalf("reason=%q, expected %q", reason, ReasonPreventiveStop)
		}
	}

	consecutive := NewInMemory(RiskConfig{ProfitTarget: 2, LossLimit: 5, StopPolicy: StopPolicyConsecutiveLosses, MaxConsecutiveLosses: 5})
	if stop, _ := consecutive.PreventiveStop(4, 2); stop {
		t.Fatalf("PreventiveStop under consecutive policy=true, expected false")
	}
}

func TestMetricsDistances(t *testing.T) {
	mgr := NewInMemory(RiskConfig{ProfitTarget: 2, LossLimit: 5, MinBalance: 0.35})
	mgr.RecordTrade(-1.25, false)

	m := mgr.GetMetrics()
	if m.DistanceToTarget != 3.25 {
		t.Fatalf("DistanceToTarget=%v, expected 3.25", m.DistanceToTarget)
	}
	if m.DistanceToLimit != 3.75 {
		t.Fatalf("DistanceToLimit=%v, expected 3.75", m.DistanceToLimit)
	}
	if m.WinRate != 0 {
		t.Fatalf("WinRate=%v, expected 0", m.WinRate)
	}
}

package risk

import (
	"math"
	"testing"
)

func TestRecoveryStakeUsesProfitTarget(t *testing.T) {
	got := RecoveryStake(2.85, 2.00, 0.88, 0.35, 1000)
	if got != 5.51 {
		t.Fatalf("RecoveryStake=%v, expected 5.51", got)
	}
}

func TestRecoveryStakeBounds(t *testing.T) {
	tests := []struct {
		name    string
		loss    float64
		target  float64
		base    float64
		balance float64
		want    float64
	}{
		{"base floor", 0.10, 0.20, 1.00, 1000, 1.00},
		{"formula", 1.00, 5.00, 1.00, 1000, 6.82},
		{"balance ceiling", 10.00, 2.00, 0.35, 20, 6.00},
		{"ceiling truncates", 10.00, 2.00, 0.35, 10.33, 3.09},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecoveryStake(tt.loss, tt.target, 0.88, tt.base, tt.balance)
			if got != tt.want {
				t.Fatalf("RecoveryStake=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestRecoveryStakeProperties(t *testing.T) {
	const r = 0.88
	base := 0.35
	for _, loss := range []float64{0.35, 0.7, 1.4, 2.85, 4.1, 9.98, 37.5} {
		for _, target := range []float64{0.5, 2, 5} {
			for _, balance := range []float64{5, 25, 100, 10000} {
				s := RecoveryStake(loss, target, r, base, balance)
				ceiling := math.Floor(balance*MaxBalanceFraction*100) / 100
				if s > balance*MaxBalanceFraction {
					t.Fatalf("L=%v P=%v bal=%v: stake %v above 30%% of balance", loss, target, balance, s)
				}
				if ceiling >= base && s < base {
					t.Fatalf("L=%v P=%v bal=%v: stake %v below base %v", loss, target, balance, s, base)
				}
				if s < ceiling {
					want := RoundMoney((loss + target) / r)
					if want < base {
						want = base
					}
					if s != want {
						t.Fatalf("L=%v P=%v bal=%v: stake %v, expected %v", loss, target, balance, s, want)
					}
				}
			}
		}
	}
}

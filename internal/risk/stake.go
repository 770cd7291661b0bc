package risk

import (
	"github.com/shopspring/decimal"
)

// RecoveryStake sizes the next trade so that a win at payoutRate repays
// accumulatedLoss and still nets profitTarget:
//
//	stake = max(base, round((L + P) / r, 2))
//	stake = min(stake, 0.30 × balance)
//
// The balance ceiling is truncated, never rounded up, and wins over base.
func RecoveryStake(accumulatedLoss, profitTarget, payoutRate, base, balance float64) float64 {
	baseStake := decimal.NewFromFloat(base)
	stake := baseStake
	if payoutRate > 0 {
		need := decimal.NewFromFloat(accumulatedLoss).
			Add(decimal.NewFromFloat(profitTarget)).
			Div(decimal.NewFromFloat(payoutRate)).
			Round(2)
		stake = decimal.Max(baseStake, need)
	}

	ceiling := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(MaxBalanceFraction)).
		Truncate(2)
	if stake.GreaterThan(ceiling) {
		stake = ceiling
	}
	return stake.InexactFloat64()
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

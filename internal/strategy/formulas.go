package strategy

import (
	"math"

	"binary-core/internal/indicators"
)

// back returns the k-th most recent value; back(w, 1) is the last price.
func back(w []float64, k int) float64 { return w[len(w)-k] }

// alphaBot1 follows short-term trend: SMA stack, price position and tick majority.
func alphaBot1(w []float64, _ stats) vote {
	sma5 := indicators.SMA(w, 5)
	sma15 := indicators.SMA(w, 15)
	cur, prev := back(w, 1), back(w, 2)

	ups, downs := 0, 0
	for i := 1; i < 8; i++ {
		switch {
		case back(w, i) > back(w, i+1):
			ups++
		case back(w, i) < back(w, i+1):
			downs++
		}
	}

	return score(
		[]bool{sma5 > sma15, cur > sma5, ups > downs, cur > prev},
		[]bool{sma5 < sma15, cur < sma5, downs > ups, cur < prev},
	)
}

// alphaBot2 fades extremes of the 30-tick range confirmed by RSI.
func alphaBot2(w []float64, _ stats) vote {
	window := w[len(w)-30:]
	high, low := window[0], window[0]
	for _, v := range window {
		high = math.Max(high, v)
		low = math.Min(low, v)
	}
	span := high - low
	if span == 0 {
		return noVote
	}
	pos := (back(w, 1) - low) / span
	rsi := indicators.RSI(w, 14)

	return score(
		[]bool{pos < 0.15, rsi < 35},
		[]bool{pos > 0.85, rsi > 65},
	)
}

// alphaBot3 trades EMA momentum only inside a sane volatility band.
func alphaBot3(w []float64, _ stats) vote {
	ema9 := indicators.EMA(w, 9)
	ema21 := indicators.EMA(w, 21)
	vol := indicators.Volatility(w, 10)
	avg := indicators.SMA(w, 10)
	if vol < avg*0.0001 || vol > avg*0.005 {
		return noVote
	}
	last := back(w, 1)
	return score(
		[]bool{ema9 > ema21, last > ema9},
		[]bool{ema9 < ema21, last < ema9},
	)
}

// alphaMind combines RSI, EMA momentum and the parity of recent last digits.
func alphaMind(w []float64, _ stats) vote {
	rsi := indicators.RSI(w, 14)
	ema8 := indicators.EMA(w, 8)
	ema20 := indicators.EMA(w, 20)

	even := 0
	digits := indicators.LastDigits(w, 6)
	for _, d := range digits {
		if d%2 == 0 {
			even++
		}
	}
	odd := len(digits) - even

	return score(
		[]bool{rsi < 40, ema8 > ema20, odd >= 5},
		[]bool{rsi > 60, ema8 < ema20, even >= 5},
	)
}

// quantumTrader polls five independent indicators.
func quantumTrader(w []float64, _ stats) vote {
	sma5, sma20 := indicators.SMA(w, 5), indicators.SMA(w, 20)
	ema9, ema21 := indicators.EMA(w, 9), indicators.EMA(w, 21)
	rsi := indicators.RSI(w, 14)
	m10 := indicators.SMA(w, 10)
	last := back(w, 1)

	return score(
		[]bool{sma5 > sma20, ema9 > ema21, rsi < 45, last > m10, last > back(w, 3)},
		[]bool{sma5 < sma20, ema9 < ema21, rsi > 55, last < m10, last < back(w, 3)},
	)
}

// titanCore only trades calm windows.
func titanCore(w []float64, _ stats) vote {
	avg := indicators.SMA(w, 15)
	if avg == 0 || indicators.Volatility(w, 15)/avg > 0.003 {
		return noVote
	}
	rsi := indicators.RSI(w, 14)
	ema := indicators.EMA(w, 10)
	last := back(w, 1)
	return score(
		[]bool{last > ema, rsi < 55},
		[]bool{last < ema, rsi > 45},
	)
}

// alphaPulse enters on sudden acceleration in the direction of the pulse.
func alphaPulse(w []float64, _ stats) vote {
	recent := math.Abs(back(w, 1) - back(w, 4))
	earlier := math.Abs(back(w, 4) - back(w, 7))
	if recent < earlier*1.5 {
		return noVote
	}
	move := back(w, 1) - back(w, 4)
	rsi := indicators.RSI(w, 10)
	return score(
		[]bool{move > 0, rsi < 60},
		[]bool{move < 0, rsi > 40},
	)
}

// alphaSmart scalps three-tick micro trends.
func alphaSmart(w []float64, _ stats) vote {
	t1, t2, t3, t4 := back(w, 1), back(w, 2), back(w, 3), back(w, 4)
	rsi := indicators.RSI(w, 7)
	return score(
		[]bool{t1 > t2 && t2 > t3 && t3 > t4, rsi < 65},
		[]bool{t1 < t2 && t2 < t3 && t3 < t4, rsi > 35},
	)
}

// alphaAnalytics reverts 1.5 standard deviations back to the 20-tick mean.
func alphaAnalytics(w []float64, _ stats) vote {
	z, ok := indicators.ZScore(w, 20)
	if !ok {
		return noVote
	}
	return score([]bool{z < -1.5}, []bool{z > 1.5})
}

// alphaSniper requires four simultaneous confirmations.
func alphaSniper(w []float64, _ stats) vote {
	rsi := indicators.RSI(w, 14)
	sma10, sma30 := indicators.SMA(w, 10), indicators.SMA(w, 30)
	ema8 := indicators.EMA(w, 8)
	calm := sma10 != 0 && indicators.Volatility(w, 10)/sma10 < 0.002
	last := back(w, 1)

	return score(
		[]bool{rsi < 40, sma10 > sma30, last > ema8, calm},
		[]bool{rsi > 60, sma10 < sma30, last < ema8, calm},
	)
}

// megaAlpha1 scores a fixed-weight linear blend of normalized indicators.
func megaAlpha1(w []float64, _ stats) vote {
	ema5, ema20 := indicators.EMA(w, 5), indicators.EMA(w, 20)
	sma10 := indicators.SMA(w, 10)
	inputs := []float64{
		(ema5 - ema20) / nonZero(ema20),
		(indicators.RSI(w, 14) - 50) / 50,
		(back(w, 1) - sma10) / nonZero(sma10),
		indicators.Volatility(w, 10) / nonZero(sma10),
	}
	weights := []float64{2.1, 1.8, 1.5, -0.9}

	s := 0.0
	for i := range inputs {
		s += inputs[i] * weights[i]
	}
	return score([]bool{s > 0.05}, []bool{s < -0.05})
}

// megaAlpha2 loosens its trend threshold while the strategy is winning.
func megaAlpha2(w []float64, st stats) vote {
	rsi := indicators.RSI(w, 14)
	emaS, emaL := indicators.EMA(w, 5), indicators.EMA(w, 25)
	trend := (emaS - emaL) / nonZero(emaL)
	threshold := 0.002
	if st.winRate > 0.6 {
		threshold = 0.001
	}
	return score(
		[]bool{trend > threshold, rsi < 60},
		[]bool{trend < -threshold, rsi > 40},
	)
}

// megaAlpha3 aligns short, medium and long EMA layers.
func megaAlpha3(w []float64, _ stats) vote {
	ema5, ema10 := indicators.EMA(w, 5), indicators.EMA(w, 10)
	ema20, ema40 := indicators.EMA(w, 20), indicators.EMA(w, 40)
	rsi := indicators.RSI(w, 14)
	return score(
		[]bool{ema5 > ema10, ema10 > ema20, ema20 > ema40, rsi < 60},
		[]bool{ema5 < ema10, ema10 < ema20, ema20 < ema40, rsi > 40},
	)
}

// alphaElite reverses strong runs in the last seven moves.
func alphaElite(w []float64, _ stats) vote {
	up, down := 0, 0
	for i := 1; i <= 7; i++ {
		if back(w, i) > back(w, i+1) {
			up++
		} else {
			down++
		}
	}
	rsi := indicators.RSI(w, 7)
	return score(
		[]bool{down >= 5, rsi < 35},
		[]bool{up >= 5, rsi > 65},
	)
}

// nexusMembers are polled by alphaNexus. A member counts only when every one
// of its conditions holds.
var nexusMembers = []formula{alphaBot1, alphaBot2, titanCore, alphaAnalytics, alphaSniper}

// alphaNexus needs three of five members to agree.
func alphaNexus(w []float64, st stats) vote {
	calls, puts := 0, 0
	for _, f := range nexusMembers {
		v := f(w, st)
		if v.total == 0 || v.met < v.total {
			continue
		}
		switch v.dir {
		case Call:
			calls++
		case Put:
			puts++
		}
	}
	total := len(nexusMembers)
	switch {
	case calls >= 3:
		return vote{dir: Call, met: calls, total: total}
	case puts >= 3:
		return vote{dir: Put, met: puts, total: total}
	default:
		return noVote
	}
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

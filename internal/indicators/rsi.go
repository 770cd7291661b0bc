package indicators

// neutralRSI is returned when there is not enough data.
const neutralRSI = 50

// floor keeps a side that saw no movement from dividing by zero.
const floor = 0.0001

// RSI computes a Relative Strength Index over the last period price changes,
// with unsmoothed averages.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return neutralRSI
	}

	gain := 0.0
	loss := 0.0
	sawGain, sawLoss := false, false
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
			sawGain = true
		} else {
			loss -= change
			sawLoss = true
		}
	}

	avgGain := floor
	if sawGain {
		avgGain = gain / float64(period)
	}
	avgLoss := floor
	if sawLoss {
		avgLoss = loss / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

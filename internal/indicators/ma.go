package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA seeds with the oldest value of the last period values and smooths
// forward with k = 2/(period+1).
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	start := len(values) - period
	ema := values[start]
	for _, v := range values[start+1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

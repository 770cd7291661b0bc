package indicators

import "math"

// Volatility is the population standard deviation of the last period values.
func Volatility(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	window := values[len(values)-period:]
	mean := SMA(window, period)
	sum := 0.0
	for _, v := range window {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(period))
}

// ZScore measures how far the last value sits from the mean of the last period
// values, in standard deviations. ok is false when the window is flat or short.
func ZScore(values []float64, period int) (z float64, ok bool) {
	std := Volatility(values, period)
	if std == 0 {
		return 0, false
	}
	return (values[len(values)-1] - SMA(values, period)) / std, true
}

package indicators

import "strconv"

// LastDigits returns the final decimal digit of each of the last n quotes,
// as printed in their shortest form.
func LastDigits(values []float64, n int) []int {
	if n > len(values) {
		n = len(values)
	}
	out := make([]int, 0, n)
	for _, v := range values[len(values)-n:] {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		out = append(out, int(s[len(s)-1]-'0'))
	}
	return out
}

package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMAAndEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	if got := SMA(values, 5); !almostEqual(got, 3) {
		t.Fatalf("SMA=%v, expected 3", got)
	}
	if got := SMA(values, 6); got != 0 {
		t.Fatalf("SMA short window=%v, expected 0", got)
	}
	// k = 0.5: 3 -> 3.5 -> 4.25
	if got := EMA(values, 3); !almostEqual(got, 4.25) {
		t.Fatalf("EMA=%v, expected 4.25", got)
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"short window is neutral", []float64{1, 2}, 14, 50},
		{"only gains", []float64{1, 2, 3, 4, 5}, 4, 100 - 100/(1+1/floor)},
		{"balanced moves", []float64{10, 11, 10, 11, 10}, 4, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RSI(tt.values, tt.period); !almostEqual(got, tt.want) {
				t.Fatalf("RSI=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestVolatilityAndZScore(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Volatility(values, 8); !almostEqual(got, 2) {
		t.Fatalf("Volatility=%v, expected 2", got)
	}
	z, ok := ZScore(values, 8)
	if !ok || !almostEqual(z, 2) {
		t.Fatalf("ZScore=%v ok=%v, expected 2 true", z, ok)
	}
	if _, ok := ZScore([]float64{3, 3, 3}, 3); ok {
		t.Fatalf("ZScore on flat window reported ok")
	}
}

func TestLastDigits(t *testing.T) {
	got := LastDigits([]float64{1234.56, 1234.5, 1234}, 5)
	want := []int{6, 5, 4}
	if len(got) != len(want) {
		t.Fatalf("len=%d, expected %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("digit[%d]=%d, expected %d", i, got[i], want[i])
		}
	}
}

func TestWindowEvictsOldestFirst(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Push(float64(i))
	}
	vals := w.Values()
	if w.Len() != 3 || vals[0] != 3 || vals[2] != 5 {
		t.Fatalf("window=%v, expected [3 4 5]", vals)
	}
	vals[0] = 99
	if w.Values()[0] != 3 {
		t.Fatalf("Values returned shared storage")
	}
	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("Len after Reset=%d, expected 0", w.Len())
	}
}

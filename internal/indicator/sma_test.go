package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// SMA(3) for [10,11,12,13,14,15]:
	// [2] = (10+11+12)/3 = 11
	// [3] = (11+12+13)/3 = 12
	// [4] = (12+13+14)/3 = 13
	// [5] = (13+14+15)/3 = 14

	if len(sma) != len(prices) {
		t.Fatalf("expected %d values, got %d", len(prices), len(sma))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(sma[i]) {
			t.Errorf("sma[%d] = %f, want NaN during warm-up", i, sma[i])
		}
	}

	expected := []float64{11, 12, 13, 14}
	for i, v := range expected {
		if sma[i+2] != v {
			t.Errorf("sma[%d] = %f, want %f", i+2, sma[i+2], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	if len(sma) != 2 {
		t.Fatalf("expected aligned slice of 2, got %d values", len(sma))
	}
	for i, v := range sma {
		if !math.IsNaN(v) {
			t.Errorf("sma[%d] = %f, want NaN", i, v)
		}
	}
}

func TestSMA_Empty(t *testing.T) {
	if got := SMA(nil, 3); len(got) != 0 {
		t.Errorf("expected empty slice, got %d values", len(got))
	}
}

func TestEMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ema := EMA(prices, 3)

	if len(ema) != 6 {
		t.Fatalf("expected 6 values, got %d", len(ema))
	}

	// Seeded with the first price, alpha = 0.5
	if ema[0] != 10 {
		t.Errorf("first EMA should equal first price, got %f", ema[0])
	}
	if ema[1] != 10.5 {
		t.Errorf("ema[1] = %f, want 10.5", ema[1])
	}
	if ema[2] != 11.25 {
		t.Errorf("ema[2] = %f, want 11.25", ema[2])
	}

	for i := 1; i < len(ema); i++ {
		if ema[i] <= ema[i-1] {
			t.Errorf("EMA should be increasing, ema[%d]=%f <= ema[%d]=%f", i, ema[i], i-1, ema[i-1])
		}
	}
}

func TestEMA_SpanOneTracksPrice(t *testing.T) {
	prices := []float64{3, 1, 4, 1, 5}
	ema := EMA(prices, 1)
	for i := range prices {
		if !almostEqual(ema[i], prices[i], 1e-12) {
			t.Errorf("ema[%d] = %f, want %f", i, ema[i], prices[i])
		}
	}
}

func TestEMA_Empty(t *testing.T) {
	if got := EMA(nil, 5); len(got) != 0 {
		t.Errorf("expected empty slice, got %d values", len(got))
	}
}

func TestPriorMax(t *testing.T) {
	values := []float64{5, 3, 4, 8, 1, 2, 7}
	got := PriorMax(values, 2)

	want := []float64{math.NaN(), math.NaN(), 5, 4, 8, 8, 2}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("got[%d] = %f, want NaN", i, got[i])
			}
			continue
		}
		if got[i] != want[i] {
			t.Errorf("got[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPriorMin(t *testing.T) {
	values := []float64{5, 3, 4, 8, 1, 2, 7}
	got := PriorMin(values, 3)

	want := []float64{math.NaN(), math.NaN(), math.NaN(), 3, 3, 1, 1}
	for i := 3; i < len(want); i++ {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("got[%d] = %f, want NaN", i, got[i])
		}
	}
}

func TestPriorMax_MatchesBruteForce(t *testing.T) {
	values := []float64{2, 9, 4, 4, 7, 1, 1, 3, 8, 6, 5, 0, 9}
	for n := 1; n <= 5; n++ {
		got := PriorMax(values, n)
		for i := n; i < len(values); i++ {
			want := values[i-n]
			for j := i - n; j < i; j++ {
				want = math.Max(want, values[j])
			}
			if got[i] != want {
				t.Errorf("n=%d: got[%d] = %f, want %f", n, i, got[i], want)
			}
		}
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

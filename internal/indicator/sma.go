package indicator

import "math"

// SMA calculates Simple Moving Average aligned with prices.
// The first period-1 values are NaN.
func SMA(prices []float64, period int) []float64 {
	result := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result[period-1] = sum / float64(period)

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result[i] = sum / float64(period)
	}

	return result
}

// EMA calculates Exponential Moving Average aligned with prices.
// It is seeded with the first price and defined from the first bar:
// ema[t] = alpha*price[t] + (1-alpha)*ema[t-1], alpha = 2/(span+1).
func EMA(prices []float64, span int) []float64 {
	if len(prices) == 0 || span <= 0 {
		return nanSlice(len(prices))
	}

	result := make([]float64, len(prices))
	alpha := 2.0 / float64(span+1)

	ema := prices[0]
	result[0] = ema
	for i := 1; i < len(prices); i++ {
		ema = alpha*prices[i] + (1-alpha)*ema
		result[i] = ema
	}

	return result
}

// PriorMax returns, for each index i, the maximum of the n values before i
// (values[i-n..i-1]). Indices with fewer than n predecessors are NaN.
func PriorMax(values []float64, n int) []float64 {
	return priorExtreme(values, n, func(a, b float64) bool { return a > b })
}

// PriorMin is the minimum counterpart of PriorMax.
func PriorMin(values []float64, n int) []float64 {
	return priorExtreme(values, n, func(a, b float64) bool { return a < b })
}

// priorExtreme keeps a monotonic deque of indices so the whole pass is O(len).
func priorExtreme(values []float64, n int, better func(a, b float64) bool) []float64 {
	result := nanSlice(len(values))
	if n <= 0 {
		return result
	}

	deque := make([]int, 0, n)
	for i := 0; i < len(values); i++ {
		if len(deque) > 0 && deque[0] < i-n {
			deque = deque[1:]
		}
		if i >= n {
			result[i] = values[deque[0]]
		}
		for len(deque) > 0 && !better(values[deque[len(deque)-1]], values[i]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
	}

	return result
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

package backtest

import (
	"math"

	"github.com/newthinker/macross/internal/core"
	"gonum.org/v1/gonum/stat"
)

// Evaluate computes performance statistics from a simulation outcome
func Evaluate(outcome Outcome, opts Options) Stats {
	var winning, losing int
	for _, t := range outcome.Trades {
		if t.IsWin() {
			winning++
		} else {
			losing++
		}
	}

	var winRate float64
	if len(outcome.Trades) > 0 {
		winRate = float64(winning) / float64(len(outcome.Trades)) * 100
	}

	curve := CumulativeCurve(outcome.Returns.Values, opts.ReturnKind)
	var cumulative float64
	if len(curve) > 0 {
		cumulative = curve[len(curve)-1] - 1
	}

	return Stats{
		TotalProfit:      TotalProfit(outcome.Trades),
		TotalTrades:      len(outcome.Trades),
		WinningTrades:    winning,
		LosingTrades:     losing,
		WinRate:          winRate,
		CumulativeReturn: cumulative,
		MaxDrawdown:      MaxDrawdown(curve),
		SharpeRatio:      SharpeRatio(outcome.Returns.Values, opts.Annualization),
		Curve:            curve,
	}
}

// TotalProfit sums trade profits in price units
func TotalProfit(trades []Trade) float64 {
	var total float64
	for _, t := range trades {
		total += t.Profit
	}
	return total
}

// CumulativeCurve compounds per-bar returns into an equity multiple:
// exp of the running sum for log returns, running product of (1+r) for
// simple returns. Simple-return equity is floored at zero; ruin is final.
func CumulativeCurve(returns []float64, kind ReturnKind) []float64 {
	curve := make([]float64, len(returns))
	if kind == ReturnLog {
		var sum float64
		for i, r := range returns {
			sum += r
			curve[i] = math.Exp(sum)
		}
		return curve
	}

	equity := 1.0
	for i, r := range returns {
		equity = math.Max(0, equity*(1+r))
		curve[i] = equity
	}
	return curve
}

// MaxDrawdown returns the worst (curve[t]-peak[t])/peak[t] over the running
// peak of the curve. The result lies in [-1, 0].
func MaxDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}

	var maxDD float64
	peak := curve[0]
	for _, c := range curve {
		if c > peak {
			peak = c
		}
		dd := -1.0
		if peak > 0 {
			dd = (c - peak) / peak
		}
		if dd < maxDD {
			maxDD = dd
		}
	}

	return maxDD
}

// SharpeRatio computes mean/stddev * sqrt(annualization) with the sample
// standard deviation and a zero risk-free rate. It is undefined for fewer
// than two returns or zero variance.
func SharpeRatio(returns []float64, annualization float64) core.NullFloat {
	if len(returns) < 2 || annualization <= 0 {
		return core.NullFloat{}
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return core.NullFloat{}
	}

	return core.Float(mean / stdDev * math.Sqrt(annualization))
}

package sweep

import (
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/strategy"
)

// CrossoverGrid enumerates fast in [fastMin, fastMax] ascending and, for each
// fast, slow in (fast, slowMax] ascending. Pairs with slow <= fast never
// appear, so an empty slice means the ranges admit no valid pair.
func CrossoverGrid(fastMin, fastMax, slowMax int, ma strategy.MAType, longOnly bool) []strategy.Params {
	if fastMin < 1 {
		fastMin = 1
	}
	var grid []strategy.Params
	for fast := fastMin; fast <= fastMax; fast++ {
		for slow := fast + 1; slow <= slowMax; slow++ {
			p, err := strategy.Crossover(fast, slow, ma, longOnly)
			if err != nil {
				continue
			}
			grid = append(grid, p)
		}
	}
	return grid
}

// BreakoutGrid enumerates lookbacks in [nMin, nMax] ascending.
func BreakoutGrid(nMin, nMax int, longOnly bool) []strategy.Params {
	if nMin < 1 {
		nMin = 1
	}
	var grid []strategy.Params
	for n := nMin; n <= nMax; n++ {
		p, err := strategy.Breakout(n, longOnly)
		if err != nil {
			continue
		}
		grid = append(grid, p)
	}
	return grid
}

// Objective reduces one backtest to the scalar being maximized
type Objective func(*backtest.Result) float64

// TotalProfit scores price-difference runs by summed trade profit.
func TotalProfit(r *backtest.Result) float64 { return r.Stats.TotalProfit }

// FinalReturn scores return-based runs by final equity multiple minus one.
func FinalReturn(r *backtest.Result) float64 { return r.Stats.CumulativeReturn }

// ObjectiveFor returns the objective matching an accounting mode.
func ObjectiveFor(a backtest.Accounting) Objective {
	if a == backtest.AccountingReturns {
		return FinalReturn
	}
	return TotalProfit
}

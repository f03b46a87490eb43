package backtest

import (
	"math"
	"time"

	"github.com/newthinker/macross/internal/core"
)

// Simulate walks positions against the series and produces both the trade
// list and the lagged strategy return series. positions must be aligned
// with series.Bars; a shorter slice is treated as flat for missing bars.
func Simulate(series core.Series, positions []core.Position, kind ReturnKind) Outcome {
	return Outcome{
		Positions: positions,
		Trades:    SimulateTrades(series, positions),
		Returns:   SimulateReturns(series, positions, kind),
	}
}

// SimulateReturns computes strategy return[t] = market return[t] * position[t-1].
// The one-bar lag means a signal seen at the close of t-1 earns the move
// during t, never the move that produced it.
func SimulateReturns(series core.Series, positions []core.Position, kind ReturnKind) Returns {
	bars := series.Bars
	if len(bars) < 2 {
		return Returns{}
	}

	out := Returns{
		Times:  make([]time.Time, 0, len(bars)-1),
		Values: make([]float64, 0, len(bars)-1),
	}
	for t := 1; t < len(bars); t++ {
		held := positionAt(positions, t-1)
		out.Times = append(out.Times, bars[t].Time)
		out.Values = append(out.Values, marketReturn(bars[t-1].Close, bars[t].Close, kind)*float64(held))
	}
	return out
}

// SimulateTrades converts position transitions into closed trades, executing
// at the close of the transition bar. A reversal closes and reopens on the
// same bar; an open position is force-closed at the final close.
func SimulateTrades(series core.Series, positions []core.Position) []Trade {
	var trades []Trade
	var openTrade *Trade

	closeAt := func(bar core.OHLCV, atEnd bool) {
		openTrade.ExitTime = bar.Time
		openTrade.ExitPrice = bar.Close
		openTrade.ClosedAtEnd = atEnd
		if openTrade.Direction == core.DirectionLong {
			openTrade.Profit = openTrade.ExitPrice - openTrade.EntryPrice
		} else {
			openTrade.Profit = openTrade.EntryPrice - openTrade.ExitPrice
		}
		trades = append(trades, *openTrade)
		openTrade = nil
	}

	prev := core.Flat
	for i, bar := range series.Bars {
		pos := positionAt(positions, i)
		if pos == prev {
			continue
		}
		if openTrade != nil {
			closeAt(bar, false)
		}
		if pos != core.Flat {
			dir := core.DirectionLong
			if pos == core.Short {
				dir = core.DirectionShort
			}
			openTrade = &Trade{
				Direction:  dir,
				EntryTime:  bar.Time,
				EntryPrice: bar.Close,
			}
		}
		prev = pos
	}

	// Close any position still open at the last close
	if openTrade != nil {
		closeAt(series.Last(), true)
	}

	return trades
}

func positionAt(positions []core.Position, i int) core.Position {
	if i < len(positions) {
		return positions[i]
	}
	return core.Flat
}

func marketReturn(prev, curr float64, kind ReturnKind) float64 {
	if prev <= 0 {
		return 0
	}
	if kind == ReturnLog {
		if curr <= 0 {
			return 0
		}
		return math.Log(curr / prev)
	}
	return curr/prev - 1
}

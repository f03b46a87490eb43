package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
)

// Accounting selects how a run is scored
type Accounting string

const (
	// AccountingReturns scores the compounded per-bar strategy return.
	AccountingReturns Accounting = "returns"
	// AccountingPriceDiff scores the summed exit-entry price differences.
	AccountingPriceDiff Accounting = "price_diff"
)

// ReturnKind selects how per-bar market returns are measured
type ReturnKind string

const (
	ReturnSimple ReturnKind = "simple"
	ReturnLog    ReturnKind = "log"
)

// Options configures simulation and evaluation of a single run
type Options struct {
	Accounting    Accounting `json:"accounting"`
	ReturnKind    ReturnKind `json:"return_kind"`
	Annualization float64    `json:"annualization"` // bars per year for the Sharpe ratio
}

// DefaultOptions returns price-difference accounting on simple returns,
// annualized for the given interval.
func DefaultOptions(interval core.Interval) Options {
	return Options{
		Accounting:    AccountingPriceDiff,
		ReturnKind:    ReturnSimple,
		Annualization: interval.BarsPerYear(),
	}
}

// Validate checks the option values
func (o Options) Validate() error {
	switch o.Accounting {
	case AccountingReturns, AccountingPriceDiff:
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown accounting mode %q", o.Accounting))
	}
	switch o.ReturnKind {
	case ReturnSimple, ReturnLog:
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown return kind %q", o.ReturnKind))
	}
	if o.Annualization <= 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("annualization must be positive, got %f", o.Annualization))
	}
	return nil
}

// Trade represents a simulated round trip from entry to exit
type Trade struct {
	Direction   core.Direction `json:"direction"`
	EntryTime   time.Time      `json:"entry_time"`
	EntryPrice  float64        `json:"entry_price"`
	ExitTime    time.Time      `json:"exit_time"`
	ExitPrice   float64        `json:"exit_price"`
	Profit      float64        `json:"profit"`        // in price units
	ClosedAtEnd bool           `json:"closed_at_end"` // forced close on the final bar
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Profit > 0
}

// Return is the profit relative to the entry price
func (t Trade) Return() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.Profit / t.EntryPrice
}

// Returns is a per-bar strategy return series. Values[i] is the return
// earned during the bar at Times[i]; the first bar of a series has no entry.
type Returns struct {
	Times  []time.Time `json:"times"`
	Values []float64   `json:"values"`
}

// Len returns the number of return observations
func (r Returns) Len() int { return len(r.Values) }

// Outcome is the raw output of a simulation
type Outcome struct {
	Positions []core.Position
	Trades    []Trade
	Returns   Returns
}

// Stats holds performance statistics
type Stats struct {
	TotalProfit      float64        `json:"total_profit"` // sum of trade profits, price units
	TotalTrades      int            `json:"total_trades"`
	WinningTrades    int            `json:"winning_trades"`
	LosingTrades     int            `json:"losing_trades"`
	WinRate          float64        `json:"win_rate"`          // percentage of profitable trades
	CumulativeReturn float64        `json:"cumulative_return"` // final equity multiple minus one
	MaxDrawdown      float64        `json:"max_drawdown"`      // negative fraction, -0.23 is -23%
	SharpeRatio      core.NullFloat `json:"sharpe_ratio"`      // annualized, null when undefined
	Curve            []float64      `json:"-"`                 // cumulative equity multiple per return bar
}

// Result holds the complete backtest output
type Result struct {
	Symbol    string          `json:"symbol"`
	Interval  core.Interval   `json:"interval"`
	Params    strategy.Params `json:"params"`
	Options   Options         `json:"options"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Bars      int             `json:"bars"`
	Trades    []Trade         `json:"trades"`
	Returns   Returns         `json:"-"`
	Stats     Stats           `json:"stats"`
}

// Score returns the headline figure for the configured accounting mode:
// total profit for price-difference, cumulative return for return-based.
func (r *Result) Score() float64 {
	if r.Options.Accounting == AccountingReturns {
		return r.Stats.CumulativeReturn
	}
	return r.Stats.TotalProfit
}

package sweep

import (
	"math"
	"sort"
	"time"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/strategy"
)

// Candidate is one evaluated grid cell
type Candidate struct {
	Params strategy.Params  `json:"params"`
	Score  float64          `json:"score"`
	Stats  backtest.Stats   `json:"stats"`
	Trades []backtest.Trade `json:"trades,omitempty"` // kept for the best cell only
}

// InstrumentResult is the reduction of the grid for one instrument. Best is
// nil when no cell could be evaluated, which is distinct from a best cell
// scoring zero.
type InstrumentResult struct {
	Symbol    string      `json:"symbol"`
	Bars      int         `json:"bars"`
	Best      *Candidate  `json:"best"`
	Top       []Candidate `json:"top,omitempty"`
	Evaluated int         `json:"evaluated"`
	Skipped   int         `json:"skipped"`

	scores []float64 // per grid cell, NaN where skipped
}

// Result holds the outcome of a sweep over every instrument
type Result struct {
	RunID       string                       `json:"run_id"`
	StartedAt   time.Time                    `json:"started_at"`
	Duration    time.Duration                `json:"duration"`
	Grid        []strategy.Params            `json:"-"`
	Options     backtest.Options             `json:"options"`
	Instruments map[string]*InstrumentResult `json:"instruments"`
}

// Symbols returns the instrument identifiers in sorted order.
func (r *Result) Symbols() []string {
	out := make([]string, 0, len(r.Instruments))
	for sym := range r.Instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Overall returns the instrument whose best cell scores highest. Ties keep
// the alphabetically first instrument. The candidate is nil when no
// instrument produced a result.
func (r *Result) Overall() (string, *Candidate) {
	var (
		symbol string
		best   *Candidate
	)
	for _, sym := range r.Symbols() {
		c := r.Instruments[sym].Best
		if c == nil {
			continue
		}
		if best == nil || c.Score > best.Score {
			symbol, best = sym, c
		}
	}
	return symbol, best
}

// AverageBest is the mean best score across instruments with a result.
// ok is false when there are none.
func (r *Result) AverageBest() (avg float64, ok bool) {
	var n int
	for _, ir := range r.Instruments {
		if ir.Best == nil {
			continue
		}
		avg += ir.Best.Score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return avg / float64(n), true
}

// Common returns the grid cell with the highest score summed across all
// instruments, counting only instruments where the cell was evaluated.
// Ties keep the earlier cell. The candidate is nil when nothing was
// evaluated; its Stats are left empty.
func (r *Result) Common() *Candidate {
	// Sum in a fixed order so near-ties resolve the same way every run.
	symbols := r.Symbols()
	var best *Candidate
	for i, p := range r.Grid {
		var (
			sum  float64
			seen bool
		)
		for _, sym := range symbols {
			ir := r.Instruments[sym]
			if i >= len(ir.scores) || math.IsNaN(ir.scores[i]) {
				continue
			}
			sum += ir.scores[i]
			seen = true
		}
		if !seen {
			continue
		}
		if best == nil || sum > best.Score {
			best = &Candidate{Params: p, Score: sum}
		}
	}
	return best
}

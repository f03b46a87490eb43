package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
)

// PortfolioResult is an equal-weight combination of per-instrument strategy
// returns over the range all instruments share.
type PortfolioResult struct {
	Params      strategy.Params    `json:"params"`
	Options     Options            `json:"options"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Instruments []string           `json:"instruments"`
	Skipped     map[string]string  `json:"skipped,omitempty"` // instrument -> reason
	Members     map[string]*Result `json:"-"`
	Returns     Returns            `json:"-"`
	MeanReturn  float64            `json:"mean_return"` // average per-bar portfolio return
	Stats       Stats              `json:"stats"`
}

// CommonRange returns the latest first bar and earliest last bar across
// the non-empty series. ok is false when none overlap.
func CommonRange(series map[string]core.Series) (start, end time.Time, ok bool) {
	first := true
	for _, s := range series {
		if s.Empty() {
			continue
		}
		lo, hi := s.Bars[0].Time, s.Last().Time
		if first {
			start, end, first = lo, hi, false
			continue
		}
		if lo.After(start) {
			start = lo
		}
		if hi.Before(end) {
			end = hi
		}
	}
	if first || end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// EqualWeight averages return series at each timestamp over the members
// that have an observation there. The output covers the union of
// timestamps in ascending order.
func EqualWeight(members map[string]Returns) Returns {
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	stamps := make(map[int64]time.Time)

	for _, r := range members {
		for i, ts := range r.Times {
			if i >= len(r.Values) {
				break
			}
			k := ts.UnixNano()
			sums[k] += r.Values[i]
			counts[k]++
			stamps[k] = ts
		}
	}

	keys := make([]int64, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := Returns{
		Times:  make([]time.Time, len(keys)),
		Values: make([]float64, len(keys)),
	}
	for i, k := range keys {
		out.Times[i] = stamps[k]
		out.Values[i] = sums[k] / float64(counts[k])
	}
	return out
}

// RunPortfolio backtests params on each series restricted to their common
// range and combines the strategy returns with equal weights. Instruments
// too short for the strategy are skipped; if none remain the result is
// ErrInsufficientData.
func RunPortfolio(series map[string]core.Series, params strategy.Params, opts Options) (*PortfolioResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start, end, ok := CommonRange(series)
	if !ok {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no common date range across %d instruments", len(series)))
	}

	res := &PortfolioResult{
		Params:    params,
		Options:   opts,
		StartDate: start,
		EndDate:   end,
		Skipped:   make(map[string]string),
		Members:   make(map[string]*Result),
	}

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	returns := make(map[string]Returns)
	for _, sym := range symbols {
		r, err := RunSeries(series[sym].Between(start, end), params, opts)
		if err != nil {
			if errors.Is(err, core.ErrInsufficientData) {
				res.Skipped[sym] = err.Error()
				continue
			}
			return nil, fmt.Errorf("portfolio %s: %w", sym, err)
		}
		res.Instruments = append(res.Instruments, sym)
		res.Members[sym] = r
		returns[sym] = r.Returns
	}
	if len(res.Instruments) == 0 {
		return nil, core.WrapError(core.ErrInsufficientData, fmt.Errorf("no instrument long enough for %s", params))
	}

	res.Returns = EqualWeight(returns)
	if n := res.Returns.Len(); n > 0 {
		var sum float64
		for _, v := range res.Returns.Values {
			sum += v
		}
		res.MeanReturn = sum / float64(n)
	}
	res.Stats = Evaluate(Outcome{Returns: res.Returns}, opts)
	return res, nil
}

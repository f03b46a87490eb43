package sweep

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeries(t *testing.T, symbol string, closes ...float64) core.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{Symbol: symbol, Open: c, High: c + 1, Low: c - 1, Close: c, Time: base.AddDate(0, 0, i)}
	}
	s, err := core.NewSeries(symbol, core.Interval1d, bars)
	require.NoError(t, err)
	return s
}

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		// saw-tooth with an upward drift
		out[i] = 100 + float64(i)/2 + float64(i%7) - float64(i%11)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	cells  map[string]int
	sweeps int
}

func (c *countingRecorder) RecordSweepCell(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cells == nil {
		c.cells = make(map[string]int)
	}
	c.cells[status]++
}

func (c *countingRecorder) RecordSweep(instruments, cells int, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
}

func priceDiff() RunOptions {
	return RunOptions{Backtest: backtest.DefaultOptions(core.Interval1d)}
}

func TestSweeper_EmptyGrid(t *testing.T) {
	_, err := New().Run(context.Background(), map[string]core.Series{"AAPL": makeSeries(t, "AAPL", wave(30)...)}, nil, priceDiff())
	assert.True(t, errors.Is(err, core.ErrEmptyGrid), "got %v", err)
}

func TestSweeper_InvalidOptions(t *testing.T) {
	opts := priceDiff()
	opts.Backtest.Annualization = 0
	grid := CrossoverGrid(1, 2, 3, strategy.MASimple, true)

	_, err := New().Run(context.Background(), map[string]core.Series{"AAPL": makeSeries(t, "AAPL", wave(30)...)}, grid, opts)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid), "got %v", err)
}

func TestSweeper_MatchesDirectBacktests(t *testing.T) {
	s := makeSeries(t, "AAPL", wave(60)...)
	grid := CrossoverGrid(1, 6, 12, strategy.MASimple, false)

	res, err := New(WithWorkers(4)).Run(context.Background(), map[string]core.Series{"AAPL": s}, grid, priceDiff())
	require.NoError(t, err)

	ir := res.Instruments["AAPL"]
	require.NotNil(t, ir.Best)
	assert.Equal(t, len(grid), ir.Evaluated)
	assert.Zero(t, ir.Skipped)

	// Strict > in grid order: the first cell reaching the maximum wins.
	var want strategy.Params
	bestScore := 0.0
	for i, p := range grid {
		r, err := backtest.RunSeries(s, p, priceDiff().Backtest)
		require.NoError(t, err)
		if i == 0 || r.Stats.TotalProfit > bestScore {
			bestScore, want = r.Stats.TotalProfit, p
		}
	}
	assert.Equal(t, want, ir.Best.Params)
	assert.Equal(t, bestScore, ir.Best.Score)
	assert.NotNil(t, ir.Best.Stats.Curve, "winner should carry its equity curve")
}

func TestSweeper_TiesKeepFirstCell(t *testing.T) {
	// A flat series scores zero everywhere.
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	grid := CrossoverGrid(1, 3, 6, strategy.MASimple, true)

	res, err := New().Run(context.Background(), map[string]core.Series{"KO": makeSeries(t, "KO", flat...)}, grid, priceDiff())
	require.NoError(t, err)

	best := res.Instruments["KO"].Best
	require.NotNil(t, best, "zero profit is still a result")
	assert.Equal(t, grid[0], best.Params)
	assert.Zero(t, best.Score)
}

func TestSweeper_WorkerCountIndependent(t *testing.T) {
	series := map[string]core.Series{
		"AAPL": makeSeries(t, "AAPL", wave(80)...),
		"MSFT": makeSeries(t, "MSFT", wave(50)[10:]...),
	}
	grid := CrossoverGrid(1, 8, 16, strategy.MAExponential, false)

	one, err := New(WithWorkers(1)).Run(context.Background(), series, grid, priceDiff())
	require.NoError(t, err)
	many, err := New(WithWorkers(16)).Run(context.Background(), series, grid, priceDiff())
	require.NoError(t, err)

	for _, sym := range one.Symbols() {
		a, b := one.Instruments[sym], many.Instruments[sym]
		require.NotNil(t, a.Best)
		require.NotNil(t, b.Best)
		assert.Equal(t, a.Best.Params, b.Best.Params, sym)
		assert.Equal(t, a.Best.Score, b.Best.Score, sym)
		require.Equal(t, len(a.Top), len(b.Top), sym)
		for i := range a.Top {
			assert.Equal(t, a.Top[i].Params, b.Top[i].Params, "%s top[%d]", sym, i)
		}
	}
}

func TestSweeper_ShortSeriesSkipped(t *testing.T) {
	series := map[string]core.Series{
		"AAPL": makeSeries(t, "AAPL", wave(40)...),
		"TINY": makeSeries(t, "TINY", 1, 2),
	}
	grid := CrossoverGrid(2, 3, 10, strategy.MASimple, true)
	rec := &countingRecorder{}

	res, err := New(WithRecorder(rec)).Run(context.Background(), series, grid, priceDiff())
	require.NoError(t, err)

	tiny := res.Instruments["TINY"]
	assert.Nil(t, tiny.Best)
	assert.Equal(t, len(grid), tiny.Skipped)
	assert.Zero(t, tiny.Evaluated)
	assert.NotNil(t, res.Instruments["AAPL"].Best)

	assert.Equal(t, len(grid), rec.cells["skipped"])
	assert.Equal(t, len(grid), rec.cells["evaluated"])
	assert.Equal(t, 1, rec.sweeps)
}

func TestSweeper_PartiallyShortSeries(t *testing.T) {
	// 5 bars: slow 3..5 can signal, slow 6 cannot.
	grid := CrossoverGrid(2, 2, 6, strategy.MASimple, true)
	res, err := New().Run(context.Background(), map[string]core.Series{"AAPL": makeSeries(t, "AAPL", 10, 11, 12, 11, 13)}, grid, priceDiff())
	require.NoError(t, err)

	ir := res.Instruments["AAPL"]
	assert.Equal(t, 3, ir.Evaluated)
	assert.Equal(t, 1, ir.Skipped)
}

func TestSweeper_TopN(t *testing.T) {
	grid := CrossoverGrid(1, 6, 12, strategy.MASimple, false)
	opts := priceDiff()
	opts.TopN = 5

	res, err := New().Run(context.Background(), map[string]core.Series{"AAPL": makeSeries(t, "AAPL", wave(60)...)}, grid, opts)
	require.NoError(t, err)

	top := res.Instruments["AAPL"].Top
	require.Len(t, top, 5)
	assert.Equal(t, res.Instruments["AAPL"].Best.Params, top[0].Params)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}

	opts.TopN = -1
	res, err = New().Run(context.Background(), map[string]core.Series{"AAPL": makeSeries(t, "AAPL", wave(60)...)}, grid, opts)
	require.NoError(t, err)
	assert.Empty(t, res.Instruments["AAPL"].Top)
}

func TestSweeper_ReturnsObjective(t *testing.T) {
	s := makeSeries(t, "AAPL", wave(60)...)
	grid := BreakoutGrid(1, 10, true)
	opts := RunOptions{Backtest: backtest.DefaultOptions(core.Interval1d)}
	opts.Backtest.Accounting = backtest.AccountingReturns

	res, err := New().Run(context.Background(), map[string]core.Series{"AAPL": s}, grid, opts)
	require.NoError(t, err)

	best := res.Instruments["AAPL"].Best
	require.NotNil(t, best)
	r, err := backtest.RunSeries(s, best.Params, opts.Backtest)
	require.NoError(t, err)
	assert.Equal(t, r.Stats.CumulativeReturn, best.Score)
}

func TestSweeper_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid := CrossoverGrid(1, 10, 20, strategy.MASimple, false)
	_, err := New().Run(ctx, map[string]core.Series{"AAPL": makeSeries(t, "AAPL", wave(60)...)}, grid, priceDiff())
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

// rankAll is the unbounded reference ranking: every cell evaluated, stably
// sorted by descending score.
func rankAll(t *testing.T, s core.Series, grid []strategy.Params, opts backtest.Options) []Candidate {
	t.Helper()
	var all []Candidate
	for _, p := range grid {
		r, err := backtest.RunSeries(s, p, opts)
		if err != nil {
			continue
		}
		st := r.Stats
		st.Curve = nil
		all = append(all, Candidate{Params: p, Score: r.Stats.TotalProfit, Stats: st})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	return all
}

func TestSweeper_BoundedTopMatchesFullRanking(t *testing.T) {
	s := makeSeries(t, "AAPL", wave(150)...)
	grid := CrossoverGrid(1, 30, 60, strategy.MASimple, false)
	opts := priceDiff()
	opts.TopN = 7

	res, err := New(WithWorkers(8)).Run(context.Background(), map[string]core.Series{"AAPL": s}, grid, opts)
	require.NoError(t, err)

	want := rankAll(t, s, grid, opts.Backtest)
	require.Greater(t, len(want), opts.TopN)
	ir := res.Instruments["AAPL"]
	require.Len(t, ir.Top, opts.TopN)
	for i, c := range ir.Top {
		assert.Equal(t, want[i].Params, c.Params, "top[%d]", i)
		assert.Equal(t, want[i].Score, c.Score, "top[%d]", i)
		assert.Equal(t, want[i].Stats, c.Stats, "top[%d] stats", i)
	}
	require.NotNil(t, ir.Best)
	assert.Equal(t, want[0].Params, ir.Best.Params)
	assert.Equal(t, len(want), ir.Evaluated)
}

func TestInsertRanked_TiesKeepGridOrder(t *testing.T) {
	scores := []float64{1, 3, 3, 2, 3, 0}
	var top []int
	for i := range scores {
		top = insertRanked(top, scores, i, 3)
	}
	assert.Equal(t, []int{1, 2, 4}, top)

	top = nil
	for i := range scores {
		top = insertRanked(top, scores, i, 10)
	}
	assert.Equal(t, []int{1, 2, 4, 3, 0, 5}, top)
}

package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTopN is the number of ranked candidates kept per instrument.
const DefaultTopN = 10

// Recorder receives sweep progress; *metrics.Registry satisfies it.
type Recorder interface {
	RecordSweepCell(status string)
	RecordSweep(instruments, cells int, duration float64)
}

// RunOptions configures a single sweep
type RunOptions struct {
	Backtest  backtest.Options
	Objective Objective // defaults to the objective for Backtest.Accounting
	TopN      int       // 0 means DefaultTopN, negative disables ranking
}

// Sweeper evaluates a parameter grid over many instruments on a bounded
// worker pool.
type Sweeper struct {
	workers  int
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithWorkers bounds the number of concurrently evaluated cells.
func WithWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// New creates a Sweeper using one worker per CPU by default.
func New(opts ...Option) *Sweeper {
	s := &Sweeper{
		workers: runtime.NumCPU(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run evaluates every grid cell against every instrument. Cells that cannot
// be evaluated (too little data, invalid params) are counted as skipped and
// never abort the sweep. The reduction walks cells in grid order and only a
// strictly greater score replaces the current best, so the outcome does not
// depend on the number of workers.
func (s *Sweeper) Run(ctx context.Context, series map[string]core.Series, grid []strategy.Params, opts RunOptions) (*Result, error) {
	if len(grid) == 0 {
		return nil, core.ErrEmptyGrid
	}
	if err := opts.Backtest.Validate(); err != nil {
		return nil, err
	}
	objective := opts.Objective
	if objective == nil {
		objective = ObjectiveFor(opts.Backtest.Accounting)
	}
	topN := opts.TopN
	if topN == 0 {
		topN = DefaultTopN
	}

	started := time.Now()
	result := &Result{
		RunID:       uuid.NewString(),
		StartedAt:   started,
		Grid:        grid,
		Options:     opts.Backtest,
		Instruments: make(map[string]*InstrumentResult, len(series)),
	}

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	s.logger.Info("sweep started",
		zap.String("run_id", result.RunID),
		zap.Int("instruments", len(symbols)),
		zap.Int("grid", len(grid)),
		zap.Int("workers", s.workers),
	)

	// Each goroutine writes only its own slot. A skipped cell is NaN.
	scores := make([][]float64, len(symbols))
	for i := range scores {
		scores[i] = make([]float64, len(grid))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

dispatch:
	for si, sym := range symbols {
		data := series[sym]
		for ci := range grid {
			if gctx.Err() != nil {
				break dispatch
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := backtest.RunSeries(data, grid[ci], opts.Backtest)
				if err != nil {
					scores[si][ci] = math.NaN()
					s.recordCell("skipped")
					return nil
				}
				scores[si][ci] = objective(r)
				s.recordCell("evaluated")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep %s: %w", result.RunID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep %s: %w", result.RunID, err)
	}

	for si, sym := range symbols {
		ir, best, top := reduce(sym, scores[si], topN)
		ir.Bars = series[sym].Len()
		if best >= 0 {
			// Re-run the winner to attach its trades and equity curve.
			ir.Best = &Candidate{Params: grid[best], Score: ir.scores[best]}
			if r, err := backtest.RunSeries(series[sym], grid[best], opts.Backtest); err == nil {
				ir.Best.Stats = r.Stats
				ir.Best.Trades = r.Trades
			}
			s.logger.Debug("instrument best",
				zap.String("symbol", sym),
				zap.String("params", ir.Best.Params.String()),
				zap.Float64("score", ir.Best.Score),
			)
		} else {
			s.logger.Warn("no valid combination", zap.String("symbol", sym), zap.Int("bars", ir.Bars))
		}
		ir.Top = s.rank(series[sym], grid, ir, best, top, opts.Backtest)
		result.Instruments[sym] = ir
	}

	result.Duration = time.Since(started)
	if s.recorder != nil {
		s.recorder.RecordSweep(len(symbols), len(symbols)*len(grid), result.Duration.Seconds())
	}
	s.logger.Info("sweep finished",
		zap.String("run_id", result.RunID),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Sweeper) recordCell(status string) {
	if s.recorder != nil {
		s.recorder.RecordSweepCell(status)
	}
}

// reduce walks an instrument's scores in grid order. best is the first
// index holding the maximum, or -1 when every cell was skipped. top holds at
// most topN indices by descending score, earlier cells first on ties.
func reduce(symbol string, scores []float64, topN int) (ir *InstrumentResult, best int, top []int) {
	ir = &InstrumentResult{Symbol: symbol, scores: scores}
	best = -1
	for i, v := range scores {
		if math.IsNaN(v) {
			ir.Skipped++
			continue
		}
		ir.Evaluated++
		if best < 0 || v > scores[best] {
			best = i
		}
		if topN > 0 {
			top = insertRanked(top, scores, i, topN)
		}
	}
	return ir, best, top
}

// insertRanked places cell i after every ranked cell scoring at least as
// much and keeps the slice at limit entries.
func insertRanked(top []int, scores []float64, i, limit int) []int {
	pos := len(top)
	for pos > 0 && scores[top[pos-1]] < scores[i] {
		pos--
	}
	if pos >= limit {
		return top
	}
	top = append(top, 0)
	copy(top[pos+1:], top[pos:])
	top[pos] = i
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

// rank re-runs the ranked cells to attach their stats. Curves are dropped;
// only Best keeps one.
func (s *Sweeper) rank(data core.Series, grid []strategy.Params, ir *InstrumentResult, best int, top []int, opts backtest.Options) []Candidate {
	if len(top) == 0 {
		return nil
	}
	out := make([]Candidate, len(top))
	for k, idx := range top {
		c := Candidate{Params: grid[idx], Score: ir.scores[idx]}
		if idx == best && ir.Best != nil {
			c.Stats = ir.Best.Stats
		} else if r, err := backtest.RunSeries(data, grid[idx], opts); err == nil {
			c.Stats = r.Stats
		} else {
			s.logger.Warn("re-run of ranked cell failed",
				zap.String("symbol", ir.Symbol),
				zap.String("params", grid[idx].String()),
				zap.Error(err),
			)
		}
		c.Stats.Curve = nil
		out[k] = c
	}
	return out
}

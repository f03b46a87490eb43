package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/macross/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent fetches in FetchAll
const DefaultParallelism = 8

// FetchRequest names the instruments and range to load
type FetchRequest struct {
	Symbols  []string
	Start    time.Time
	End      time.Time
	Interval core.Interval
}

// FetchResult holds the loaded series and the per-symbol failures
type FetchResult struct {
	Series map[string]core.Series
	Failed map[string]error
}

// FetchAll loads every symbol on a bounded pool. A failing or empty symbol
// is recorded in Failed and does not stop the others; only cancellation of
// ctx is returned as an error.
func FetchAll(ctx context.Context, p Provider, req FetchRequest, parallelism int, logger *zap.Logger) (*FetchResult, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var mu sync.Mutex
	res := &FetchResult{
		Series: make(map[string]core.Series, len(req.Symbols)),
		Failed: make(map[string]error),
	}
	fail := func(symbol string, err error) {
		mu.Lock()
		res.Failed[symbol] = err
		mu.Unlock()
		logger.Warn("fetch failed", zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(parallelism)

	for _, symbol := range req.Symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			bars, err := p.FetchHistory(ctx, symbol, req.Start, req.End, req.Interval)
			if err != nil {
				fail(symbol, err)
				return nil
			}
			if len(bars) == 0 {
				fail(symbol, core.WrapError(core.ErrNoData, fmt.Errorf("%s %s", symbol, req.Interval)))
				return nil
			}
			series, err := core.NewSeries(symbol, req.Interval, Normalize(bars))
			if err != nil {
				fail(symbol, err)
				return nil
			}

			mu.Lock()
			res.Series[symbol] = series
			mu.Unlock()
			logger.Debug("fetched", zap.String("provider", p.Name()), zap.String("symbol", symbol), zap.Int("bars", series.Len()))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/newthinker/macross/internal/strategy/factory"
	"go.uber.org/zap"
)

// OHLCVProvider defines the interface for fetching historical OHLCV data
type OHLCVProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error)
}

// Recorder receives run outcomes; *metrics.Registry satisfies it.
type Recorder interface {
	RecordBacktest(status string, duration float64)
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider OHLCVProvider
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Backtester
type Option func(*Backtester)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(b *Backtester) { b.recorder = r }
}

// New creates a new Backtester with the given OHLCV provider
func New(provider OHLCVProvider, opts ...Option) *Backtester {
	b := &Backtester{
		provider: provider,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run fetches history for symbol and backtests params over it.
func (b *Backtester) Run(ctx context.Context, symbol string, interval core.Interval, start, end time.Time, params strategy.Params, opts Options) (*Result, error) {
	began := time.Now()

	ohlcv, err := b.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		b.record("fetch_failed", began)
		return nil, err
	}
	if len(ohlcv) == 0 {
		b.record("no_data", began)
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s %s", symbol, interval))
	}

	series, err := core.NewSeries(symbol, interval, ohlcv)
	if err != nil {
		b.record("invalid_series", began)
		return nil, err
	}

	result, err := RunSeries(series, params, opts)
	if err != nil {
		status := "failed"
		if code := core.CodeOf(err); code != "" {
			status = strings.ToLower(code)
		}
		b.record(status, began)
		return nil, err
	}

	b.record("success", began)
	b.logger.Debug("backtest complete",
		zap.String("symbol", symbol),
		zap.String("params", params.String()),
		zap.Int("bars", result.Bars),
		zap.Int("trades", result.Stats.TotalTrades),
		zap.Float64("total_profit", result.Stats.TotalProfit),
	)
	return result, nil
}

func (b *Backtester) record(status string, began time.Time) {
	if b.recorder != nil {
		b.recorder.RecordBacktest(status, time.Since(began).Seconds())
	}
}

// RunSeries backtests params over an already loaded series. It is pure:
// nothing outside the returned Result is written. A series too short for
// any bar to signal yields ErrInsufficientData.
func RunSeries(series core.Series, params strategy.Params, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	strat, err := factory.New(params)
	if err != nil {
		return nil, err
	}
	if series.Len() <= params.Warmup() {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%s has %d bars, %s needs more than %d", series.Symbol, series.Len(), params, params.Warmup()))
	}

	positions := strat.Positions(series.Bars)
	outcome := Simulate(series, positions, opts.ReturnKind)

	return &Result{
		Symbol:    series.Symbol,
		Interval:  series.Interval,
		Params:    params,
		Options:   opts,
		StartDate: series.Bars[0].Time,
		EndDate:   series.Last().Time,
		Bars:      series.Len(),
		Trades:    outcome.Trades,
		Returns:   outcome.Returns,
		Stats:     Evaluate(outcome, opts),
	}, nil
}

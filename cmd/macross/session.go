package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/collector/cache"
	"github.com/newthinker/macross/internal/collector/crypto/binance"
	"github.com/newthinker/macross/internal/collector/crypto/okx"
	"github.com/newthinker/macross/internal/collector/eastmoney"
	"github.com/newthinker/macross/internal/collector/yahoo"
	"github.com/newthinker/macross/internal/config"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/logger"
	"github.com/newthinker/macross/internal/metrics"
	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session holds what every command needs once config is resolved.
type session struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Registry
	store    archive.Storage // nil unless the cache or publishing is on
	provider collector.Provider
	start    time.Time
	end      time.Time
}

func newProviders() *collector.Registry {
	r := collector.NewRegistry()
	r.Register(yahoo.New())
	r.Register(binance.New())
	r.Register(okx.New())
	r.Register(eastmoney.New())
	return r
}

// loadConfig reads --config or falls back to defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withSession loads config, applies flag overrides, wires the provider
// chain and runs fn under a context cancelled by SIGINT or SIGTERM.
func withSession(cmd *cobra.Command, override func(*config.Config), fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if override != nil {
		override(cfg)
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logCfg := logger.Config{Development: cfg.Log.Development || debug, Level: cfg.Log.Level}
	if debug {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{cfg: cfg, log: log, metrics: metrics.NewRegistry()}
	s.start, s.end, err = cfg.Data.Range(time.Now())
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, s.metrics, log); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	if cfg.Data.Cache || cfg.Storage.Publish {
		s.store, err = archive.Open(cfg.Storage.Config)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
	}

	base, err := newProviders().Lookup(strings.ToLower(cfg.Data.Provider))
	if err != nil {
		return err
	}
	s.provider = collector.NewRetrying(base, cfg.Data.Retry, log, s.metrics)
	if cfg.Data.Cache {
		s.provider = cache.New(s.provider, s.store, log)
	}

	log.Debug("session ready",
		zap.String("provider", base.Name()),
		zap.String("interval", cfg.Data.Interval),
		zap.Time("start", s.start),
		zap.Time("end", s.end),
		zap.Bool("cache", cfg.Data.Cache),
	)

	return fn(ctx, s)
}

func (s *session) interval() core.Interval {
	return core.Interval(s.cfg.Data.Interval)
}

// fetch loads every symbol and logs the ones that failed.
func (s *session) fetch(ctx context.Context, symbols []string) (map[string]core.Series, error) {
	res, err := collector.FetchAll(ctx, s.provider, collector.FetchRequest{
		Symbols:  symbols,
		Start:    s.start,
		End:      s.end,
		Interval: s.interval(),
	}, s.cfg.Data.Parallelism, s.log)
	if err != nil {
		return nil, err
	}
	for sym, ferr := range res.Failed {
		fmt.Fprintf(os.Stderr, "skipping %s: %v\n", sym, ferr)
	}
	if len(res.Series) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("none of %d symbols could be loaded", len(symbols)))
	}
	return res.Series, nil
}

// publish stores artifacts under runID when publishing is on.
func (s *session) publish(ctx context.Context, runID string, artifacts report.Artifacts) error {
	if !s.cfg.Storage.Publish {
		return nil
	}
	paths, err := report.Publish(ctx, s.store, runID, artifacts)
	if err != nil {
		return err
	}
	s.log.Info("results published", zap.String("run_id", runID), zap.Int("files", len(paths)))
	fmt.Printf("Published %d files under runs/%s/\n", len(paths), runID)
	return nil
}

// dataFlags are the price source flags shared by every command.
type dataFlags struct {
	provider    string
	interval    string
	from        string
	to          string
	noCache     bool
	parallelism int
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "price source: yahoo, binance, okx or eastmoney")
	cmd.Flags().StringVar(&f.interval, "interval", "", "bar interval, e.g. 1d or 1h")
	cmd.Flags().StringVar(&f.from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "end date YYYY-MM-DD")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "always fetch from the provider")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "concurrent fetches")
}

func (f *dataFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("provider") {
		cfg.Data.Provider = f.provider
	}
	if changed("interval") {
		cfg.Data.Interval = f.interval
	}
	if changed("from") {
		cfg.Data.Start = f.from
	}
	if changed("to") {
		cfg.Data.End = f.to
	}
	if f.noCache {
		cfg.Data.Cache = false
	}
	if changed("parallelism") {
		cfg.Data.Parallelism = f.parallelism
	}
}

// backtestFlags select the accounting mode and publishing.
type backtestFlags struct {
	accounting string
	returnKind string
	publish    bool
}

func (f *backtestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.accounting, "accounting", "", "price_diff or returns")
	cmd.Flags().StringVar(&f.returnKind, "return-kind", "", "simple or log")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "write reports to the configured storage")
}

func (f *backtestFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("accounting") {
		cfg.Backtest.Accounting = f.accounting
	}
	if changed("return-kind") {
		cfg.Backtest.ReturnKind = f.returnKind
	}
	if f.publish {
		cfg.Storage.Publish = true
	}
}

// strategyFlags choose a single parameterization.
type strategyFlags struct {
	kind     string
	fast     int
	slow     int
	ma       string
	lookback int
	longOnly bool
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "kind", "", "crossover or breakout")
	cmd.Flags().IntVar(&f.fast, "fast", 0, "fast moving average window")
	cmd.Flags().IntVar(&f.slow, "slow", 0, "slow moving average window")
	cmd.Flags().StringVar(&f.ma, "ma", "", "moving average type: sma or ema")
	cmd.Flags().IntVar(&f.lookback, "lookback", 0, "breakout channel lookback")
	cmd.Flags().BoolVar(&f.longOnly, "long-only", true, "never hold short positions")
}

func (f *strategyFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("kind") {
		cfg.Strategy.Kind = f.kind
	}
	if changed("fast") {
		cfg.Strategy.Fast = f.fast
	}
	if changed("slow") {
		cfg.Strategy.Slow = f.slow
	}
	if changed("ma") {
		cfg.Strategy.MA = f.ma
	}
	if changed("lookback") {
		cfg.Strategy.Lookback = f.lookback
	}
	if changed("long-only") {
		cfg.Strategy.LongOnly = f.longOnly
	}
}

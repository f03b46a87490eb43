package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/storage/archive"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/spf13/viper"
)

// DateLayout is the format of start and end dates in config and flags
const DateLayout = "2006-01-02"

type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// DataConfig selects the price source and the instruments to load.
type DataConfig struct {
	Provider    string                `mapstructure:"provider"` // "yahoo", "binance", "okx" or "eastmoney"
	Symbols     []string              `mapstructure:"symbols"`
	Interval    string                `mapstructure:"interval"`
	Start       string                `mapstructure:"start"` // YYYY-MM-DD
	End         string                `mapstructure:"end"`   // YYYY-MM-DD, empty means now
	Parallelism int                   `mapstructure:"parallelism"`
	Cache       bool                  `mapstructure:"cache"`
	Retry       collector.RetryPolicy `mapstructure:"retry"`
}

type StrategyConfig struct {
	Kind     string `mapstructure:"kind"` // "crossover" or "breakout"
	Fast     int    `mapstructure:"fast"`
	Slow     int    `mapstructure:"slow"`
	MA       string `mapstructure:"ma"` // "sma" or "ema"
	Lookback int    `mapstructure:"lookback"`
	LongOnly bool   `mapstructure:"long_only"`
}

type BacktestConfig struct {
	Accounting    string  `mapstructure:"accounting"`  // "price_diff" or "returns"
	ReturnKind    string  `mapstructure:"return_kind"` // "simple" or "log"
	Annualization float64 `mapstructure:"annualization"`
}

// SweepConfig bounds the parameter grid. The crossover grid uses the
// fast/slow ranges, the breakout grid the lookback range.
type SweepConfig struct {
	FastMin     int `mapstructure:"fast_min"`
	FastMax     int `mapstructure:"fast_max"`
	SlowMax     int `mapstructure:"slow_max"`
	LookbackMin int `mapstructure:"lookback_min"`
	LookbackMax int `mapstructure:"lookback_max"`
	Workers     int `mapstructure:"workers"`
	TopN        int `mapstructure:"top_n"`
}

// StorageConfig holds the archive used for the price cache and reports.
type StorageConfig struct {
	archive.Config `mapstructure:",squash"`
	Publish        bool `mapstructure:"publish"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("MACROSS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Data: DataConfig{
			Provider:    "yahoo",
			Interval:    string(core.Interval1d),
			Start:       "2015-01-01",
			Parallelism: collector.DefaultParallelism,
			Cache:       true,
			Retry:       collector.DefaultRetryPolicy(),
		},
		Strategy: StrategyConfig{
			Kind:     string(strategy.KindCrossover),
			Fast:     50,
			Slow:     200,
			MA:       string(strategy.MASimple),
			Lookback: 20,
			LongOnly: true,
		},
		Backtest: BacktestConfig{
			Accounting: string(backtest.AccountingPriceDiff),
			ReturnKind: string(backtest.ReturnSimple),
		},
		Sweep: SweepConfig{
			FastMin:     1,
			FastMax:     50,
			SlowMax:     200,
			LookbackMin: 1,
			LookbackMax: 1000,
			TopN:        10,
		},
		Storage: StorageConfig{
			Config: archive.Config{Backend: archive.BackendLocal, Path: "data"},
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors. The single-run strategy is
// not checked here since a sweep never uses it; commands that need it call
// Strategy.Params.
func (c *Config) Validate() error {
	if c.Data.Provider == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.provider"))
	}
	if _, _, err := c.Data.Range(time.Now()); err != nil {
		return err
	}
	if c.Data.Parallelism < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.parallelism cannot be negative, got %d", c.Data.Parallelism))
	}
	if c.Data.Retry.MaxAttempts < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.retry.max_attempts must be at least 1, got %d", c.Data.Retry.MaxAttempts))
	}

	if err := c.Backtest.Options(c.Data.Interval).Validate(); err != nil {
		return err
	}

	if c.Sweep.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep.workers cannot be negative, got %d", c.Sweep.Workers))
	}
	if c.Sweep.FastMin < 1 || c.Sweep.FastMax < c.Sweep.FastMin {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep fast range [%d, %d] is empty", c.Sweep.FastMin, c.Sweep.FastMax))
	}
	if c.Sweep.LookbackMin < 1 || c.Sweep.LookbackMax < c.Sweep.LookbackMin {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep lookback range [%d, %d] is empty", c.Sweep.LookbackMin, c.Sweep.LookbackMax))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("metrics.addr required when metrics are enabled"))
	}

	return nil
}

// Range parses the start and end dates. An empty end means now.
func (d DataConfig) Range(now time.Time) (start, end time.Time, err error) {
	start, err = time.Parse(DateLayout, d.Start)
	if err != nil {
		return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.start: %w", err))
	}
	end = now.UTC()
	if d.End != "" {
		end, err = time.Parse(DateLayout, d.End)
		if err != nil {
			return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.end: %w", err))
		}
	}
	if !end.After(start) {
		return start, end, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.end %s must be after data.start %s", end.Format(DateLayout), start.Format(DateLayout)))
	}
	return start, end, nil
}

// Params builds validated strategy parameters.
func (s StrategyConfig) Params() (strategy.Params, error) {
	switch strategy.Kind(strings.ToLower(s.Kind)) {
	case strategy.KindCrossover:
		ma, err := strategy.ParseMAType(s.MA)
		if err != nil {
			return strategy.Params{}, err
		}
		return strategy.Crossover(s.Fast, s.Slow, ma, s.LongOnly)
	case strategy.KindBreakout:
		return strategy.Breakout(s.Lookback, s.LongOnly)
	default:
		return strategy.Params{}, core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown strategy kind %q", s.Kind))
	}
}

// Options converts to backtest options. A zero annualization falls back to
// the bars-per-year of interval.
func (b BacktestConfig) Options(interval string) backtest.Options {
	opts := backtest.DefaultOptions(core.Interval(interval))
	if b.Accounting != "" {
		opts.Accounting = backtest.Accounting(b.Accounting)
	}
	if b.ReturnKind != "" {
		opts.ReturnKind = backtest.ReturnKind(b.ReturnKind)
	}
	if b.Annualization > 0 {
		opts.Annualization = b.Annualization
	}
	return opts
}

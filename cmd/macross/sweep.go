package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/newthinker/macross/internal/config"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/report"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/newthinker/macross/internal/sweep"
	"github.com/spf13/cobra"
)

var (
	sweepSymbols  []string
	sweepKind     string
	sweepMA       string
	sweepLongOnly bool
	sweepRanges   config.SweepConfig
	sweepData     dataFlags
	sweepOpts     backtestFlags
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Search the parameter grid for the best strategy per symbol",
	Long: `Evaluate every crossover (fast, slow) pair or every breakout lookback in the
configured ranges on each symbol, and report the best and top ranked cells
per symbol, the best symbol overall and the pair that does best across all
symbols combined.`,
	Example: `  macross sweep --symbols AAPL,MSFT,KO --fast-min 1 --fast-max 50 --slow-max 200
  macross sweep --symbols BTCUSDT,ETHUSDT --provider binance --interval 1h --kind breakout --lookback-max 1000`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	f := sweepCmd.Flags()
	f.StringSliceVar(&sweepSymbols, "symbols", nil, "comma-separated symbols (default from config)")
	f.StringVar(&sweepKind, "kind", "", "crossover or breakout")
	f.StringVar(&sweepMA, "ma", "", "moving average type for crossover: sma or ema")
	f.BoolVar(&sweepLongOnly, "long-only", true, "never hold short positions")
	f.IntVar(&sweepRanges.FastMin, "fast-min", 0, "smallest fast window")
	f.IntVar(&sweepRanges.FastMax, "fast-max", 0, "largest fast window")
	f.IntVar(&sweepRanges.SlowMax, "slow-max", 0, "largest slow window")
	f.IntVar(&sweepRanges.LookbackMin, "lookback-min", 0, "smallest breakout lookback")
	f.IntVar(&sweepRanges.LookbackMax, "lookback-max", 0, "largest breakout lookback")
	f.IntVar(&sweepRanges.Workers, "workers", 0, "concurrent backtests (default one per CPU)")
	f.IntVar(&sweepRanges.TopN, "top", 0, "ranked cells kept per symbol, negative disables")
	sweepData.register(sweepCmd)
	sweepOpts.register(sweepCmd)

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	override := func(cfg *config.Config) {
		sweepData.apply(cmd, cfg)
		sweepOpts.apply(cmd, cfg)
		changed := cmd.Flags().Changed
		if changed("symbols") {
			cfg.Data.Symbols = sweepSymbols
		}
		if changed("kind") {
			cfg.Strategy.Kind = sweepKind
		}
		if changed("ma") {
			cfg.Strategy.MA = sweepMA
		}
		if changed("long-only") {
			cfg.Strategy.LongOnly = sweepLongOnly
		}
		for flag, dst := range map[string]*int{
			"fast-min":     &cfg.Sweep.FastMin,
			"fast-max":     &cfg.Sweep.FastMax,
			"slow-max":     &cfg.Sweep.SlowMax,
			"lookback-min": &cfg.Sweep.LookbackMin,
			"lookback-max": &cfg.Sweep.LookbackMax,
			"workers":      &cfg.Sweep.Workers,
			"top":          &cfg.Sweep.TopN,
		} {
			if changed(flag) {
				v, _ := cmd.Flags().GetInt(flag)
				*dst = v
			}
		}
	}

	return withSession(cmd, override, func(ctx context.Context, s *session) error {
		if len(s.cfg.Data.Symbols) == 0 {
			return fmt.Errorf("no symbols: pass --symbols or set data.symbols")
		}
		grid, err := sweepGrid(s.cfg)
		if err != nil {
			return err
		}

		series, err := s.fetch(ctx, s.cfg.Data.Symbols)
		if err != nil {
			return err
		}

		sw := sweep.New(
			sweep.WithWorkers(s.cfg.Sweep.Workers),
			sweep.WithLogger(s.log),
			sweep.WithRecorder(s.metrics),
		)
		res, err := sw.Run(ctx, series, grid, sweep.RunOptions{
			Backtest: s.cfg.Backtest.Options(s.cfg.Data.Interval),
			TopN:     s.cfg.Sweep.TopN,
		})
		if err != nil {
			return err
		}

		printSweep(res)

		artifacts, err := report.SweepArtifacts(res)
		if err != nil {
			return err
		}
		return s.publish(ctx, res.RunID, artifacts)
	})
}

func sweepGrid(cfg *config.Config) ([]strategy.Params, error) {
	sc := cfg.Sweep
	switch strategy.Kind(strings.ToLower(cfg.Strategy.Kind)) {
	case strategy.KindBreakout:
		return sweep.BreakoutGrid(sc.LookbackMin, sc.LookbackMax, cfg.Strategy.LongOnly), nil
	case strategy.KindCrossover:
		ma, err := strategy.ParseMAType(cfg.Strategy.MA)
		if err != nil {
			return nil, err
		}
		return sweep.CrossoverGrid(sc.FastMin, sc.FastMax, sc.SlowMax, ma, cfg.Strategy.LongOnly), nil
	default:
		return nil, core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown strategy kind %q", cfg.Strategy.Kind))
	}
}

func printSweep(res *sweep.Result) {
	fmt.Println("=== MACROSS Sweep ===")
	fmt.Printf("Run:      %s\n", res.RunID)
	fmt.Printf("Grid:     %d combinations\n", len(res.Grid))
	fmt.Printf("Duration: %s\n", res.Duration.Round(time.Millisecond))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBARS\tBEST\tSCORE\tTRADES\tWIN%\tMAX DD\tSHARPE\tEVALUATED\t")
	fmt.Fprintln(w, "------\t----\t----\t-----\t------\t----\t------\t------\t---------\t")
	for _, sym := range res.Symbols() {
		ir := res.Instruments[sym]
		if ir.Best == nil {
			fmt.Fprintf(w, "%s\t%d\t-\t-\t-\t-\t-\t-\t%d/%d\t\n", sym, ir.Bars, ir.Evaluated, ir.Evaluated+ir.Skipped)
			continue
		}
		st := ir.Best.Stats
		fmt.Fprintf(w, "%s\t%d\t%s\t%.4f\t%d\t%.1f\t%.2f%%\t%s\t%d/%d\t\n",
			sym, ir.Bars, ir.Best.Params, ir.Best.Score, st.TotalTrades, st.WinRate,
			st.MaxDrawdown*100, st.SharpeRatio, ir.Evaluated, ir.Evaluated+ir.Skipped)
	}
	w.Flush()
	fmt.Println()

	if sym, best := res.Overall(); best != nil {
		fmt.Printf("Best overall:   %s %s (score %.4f)\n", sym, best.Params, best.Score)
	}
	if avg, ok := res.AverageBest(); ok {
		fmt.Printf("Average best:   %.4f\n", avg)
	}
	if common := res.Common(); common != nil {
		fmt.Printf("Best in common: %s (summed score %.4f)\n", common.Params, common.Score)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/config"
	"github.com/newthinker/macross/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestSymbol   string
	backtestShowAll  bool
	backtestData     dataFlags
	backtestStrategy strategyFlags
	backtestOpts     backtestFlags
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a single strategy backtest",
	Long: `Fetch history for one symbol, run one crossover or breakout parameterization
over it and print trades and performance statistics.`,
	Example: `  macross backtest --symbol AAPL --fast 50 --slow 200 --from 2015-01-01
  macross backtest --symbol BTCUSDT --provider binance --interval 1h --kind breakout --lookback 55`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "Symbol to backtest (required)")
	backtestCmd.Flags().BoolVar(&backtestShowAll, "trades", false, "list every trade")
	backtestData.register(backtestCmd)
	backtestStrategy.register(backtestCmd)
	backtestOpts.register(backtestCmd)

	backtestCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	override := func(cfg *config.Config) {
		backtestData.apply(cmd, cfg)
		backtestStrategy.apply(cmd, cfg)
		backtestOpts.apply(cmd, cfg)
	}

	return withSession(cmd, override, func(ctx context.Context, s *session) error {
		params, err := s.cfg.Strategy.Params()
		if err != nil {
			return err
		}
		opts := s.cfg.Backtest.Options(s.cfg.Data.Interval)

		bt := backtest.New(s.provider, backtest.WithLogger(s.log), backtest.WithRecorder(s.metrics))
		result, err := bt.Run(ctx, backtestSymbol, s.interval(), s.start, s.end, params, opts)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", backtestSymbol, err)
		}

		printBacktest(result, backtestShowAll)

		runID := uuid.NewString()
		artifacts, err := report.BacktestArtifacts(result)
		if err != nil {
			return err
		}
		if err := s.publish(ctx, runID, artifacts); err != nil {
			return err
		}
		s.log.Info("backtest finished", zap.String("symbol", backtestSymbol), zap.String("params", params.String()))
		return nil
	})
}

func printBacktest(r *backtest.Result, showTrades bool) {
	fmt.Println("=== MACROSS Backtest ===")
	fmt.Printf("Symbol:     %s (%s)\n", r.Symbol, r.Interval)
	fmt.Printf("Strategy:   %s\n", r.Params)
	fmt.Printf("Period:     %s to %s (%d bars)\n", r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly), r.Bars)
	fmt.Printf("Accounting: %s, %s returns\n", r.Options.Accounting, r.Options.ReturnKind)
	fmt.Println()
	printStats(r.Stats)

	if !showTrades || len(r.Trades) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIRECTION\tENTRY\tPRICE\tEXIT\tPRICE\tPROFIT\t")
	fmt.Fprintln(w, "---------\t-----\t-----\t----\t-----\t------\t")
	for _, t := range r.Trades {
		exit := t.ExitTime.Format(time.DateTime)
		if t.ClosedAtEnd {
			exit += " (end)"
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%.2f\t%+.2f\t\n",
			t.Direction, t.EntryTime.Format(time.DateTime), t.EntryPrice, exit, t.ExitPrice, t.Profit)
	}
	w.Flush()
}

func printStats(st backtest.Stats) {
	fmt.Printf("Trades:            %d (%d won, %d lost)\n", st.TotalTrades, st.WinningTrades, st.LosingTrades)
	fmt.Printf("Win rate:          %.2f%%\n", st.WinRate)
	fmt.Printf("Total profit:      %.2f\n", st.TotalProfit)
	fmt.Printf("Cumulative return: %.2f%%\n", st.CumulativeReturn*100)
	fmt.Printf("Max drawdown:      %.2f%%\n", st.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio:      %s\n", st.SharpeRatio)
}

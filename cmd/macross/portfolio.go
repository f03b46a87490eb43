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
)

var (
	portfolioSymbols  []string
	portfolioData     dataFlags
	portfolioStrategy strategyFlags
	portfolioOpts     backtestFlags
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Backtest one strategy on an equal-weight basket",
	Long: `Run one parameterization on every symbol over the date range they all share
and combine the per-bar strategy returns with equal weights.`,
	Example: `  macross portfolio --symbols AAPL,MSFT,KO --fast 20 --slow 100 --accounting returns`,
	Args:    cobra.NoArgs,
	RunE:    runPortfolio,
}

func init() {
	portfolioCmd.Flags().StringSliceVar(&portfolioSymbols, "symbols", nil, "comma-separated symbols (default from config)")
	portfolioData.register(portfolioCmd)
	portfolioStrategy.register(portfolioCmd)
	portfolioOpts.register(portfolioCmd)

	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	override := func(cfg *config.Config) {
		portfolioData.apply(cmd, cfg)
		portfolioStrategy.apply(cmd, cfg)
		portfolioOpts.apply(cmd, cfg)
		if cmd.Flags().Changed("symbols") {
			cfg.Data.Symbols = portfolioSymbols
		}
	}

	return withSession(cmd, override, func(ctx context.Context, s *session) error {
		if len(s.cfg.Data.Symbols) == 0 {
			return fmt.Errorf("no symbols: pass --symbols or set data.symbols")
		}
		params, err := s.cfg.Strategy.Params()
		if err != nil {
			return err
		}

		series, err := s.fetch(ctx, s.cfg.Data.Symbols)
		if err != nil {
			return err
		}

		res, err := backtest.RunPortfolio(series, params, s.cfg.Backtest.Options(s.cfg.Data.Interval))
		if err != nil {
			return err
		}

		printPortfolio(res)

		artifacts, err := report.PortfolioArtifacts(res)
		if err != nil {
			return err
		}
		return s.publish(ctx, uuid.NewString(), artifacts)
	})
}

func printPortfolio(res *backtest.PortfolioResult) {
	fmt.Println("=== MACROSS Portfolio ===")
	fmt.Printf("Strategy: %s\n", res.Params)
	fmt.Printf("Period:   %s to %s\n", res.StartDate.Format(time.DateOnly), res.EndDate.Format(time.DateOnly))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBARS\tTRADES\tPROFIT\tRETURN\tMAX DD\t")
	fmt.Fprintln(w, "------\t----\t------\t------\t------\t------\t")
	for _, sym := range res.Instruments {
		m := res.Members[sym]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f%%\t%.2f%%\t\n",
			sym, m.Bars, m.Stats.TotalTrades, m.Stats.TotalProfit, m.Stats.CumulativeReturn*100, m.Stats.MaxDrawdown*100)
	}
	w.Flush()
	for sym, reason := range res.Skipped {
		fmt.Printf("skipped %s: %s\n", sym, reason)
	}
	fmt.Println()

	fmt.Printf("Mean bar return:   %.4f%%\n", res.MeanReturn*100)
	printStats(res.Stats)
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	debug       bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "macross",
	Short: "MACROSS - moving-average crossover and breakout backtester",
	Long: `MACROSS backtests moving-average crossover and channel breakout strategies
on daily or intraday bars and sweeps their parameters across instruments.
Prices come from Yahoo Finance, Binance, OKX or Eastmoney.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

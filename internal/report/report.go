// Package report renders backtest, sweep and portfolio results as CSV and
// JSON and publishes them to an archive.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/storage/archive"
	"github.com/newthinker/macross/internal/sweep"
)

var sweepHeader = []string{
	"symbol", "rank", "params", "score", "total_profit", "cumulative_return",
	"trades", "win_rate", "max_drawdown", "sharpe",
}

var tradesHeader = []string{
	"symbol", "direction", "entry_time", "entry_price", "exit_time", "exit_price",
	"profit", "return", "closed_at_end",
}

// WriteSweepCSV writes the ranked cells of every instrument. Rank 1 is the
// best cell; instruments without a result are omitted.
func WriteSweepCSV(w io.Writer, res *sweep.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sweepHeader); err != nil {
		return err
	}
	for _, sym := range res.Symbols() {
		ir := res.Instruments[sym]
		rows := ir.Top
		if len(rows) == 0 && ir.Best != nil {
			rows = []sweep.Candidate{*ir.Best}
		}
		for i, c := range rows {
			if err := cw.Write([]string{
				sym,
				strconv.Itoa(i + 1),
				c.Params.String(),
				formatF(c.Score),
				formatF(c.Stats.TotalProfit),
				formatF(c.Stats.CumulativeReturn),
				strconv.Itoa(c.Stats.TotalTrades),
				formatF(c.Stats.WinRate),
				formatF(c.Stats.MaxDrawdown),
				formatNull(c.Stats.SharpeRatio.Value, c.Stats.SharpeRatio.Valid),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes one row per trade.
func WriteTradesCSV(w io.Writer, symbol string, trades []backtest.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradesHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			symbol,
			string(t.Direction),
			t.EntryTime.UTC().Format(time.RFC3339),
			formatF(t.EntryPrice),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatF(t.ExitPrice),
			formatF(t.Profit),
			formatF(t.Return()),
			strconv.FormatBool(t.ClosedAtEnd),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Artifacts maps file names to their contents
type Artifacts map[string][]byte

// Names returns the file names in sorted order.
func (a Artifacts) Names() []string {
	out := make([]string, 0, len(a))
	for name := range a {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BacktestArtifacts renders a single run: summary.json and trades.csv.
func BacktestArtifacts(res *backtest.Result) (Artifacts, error) {
	a := Artifacts{}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	a["summary.json"] = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := WriteTradesCSV(&buf, res.Symbol, res.Trades); err != nil {
		return nil, fmt.Errorf("trades: %w", err)
	}
	a["trades.csv"] = bytes.Clone(buf.Bytes())
	return a, nil
}

// SweepArtifacts renders a sweep: summary.json, sweep.csv and the trades of
// each instrument's best cell under trades/.
func SweepArtifacts(res *sweep.Result) (Artifacts, error) {
	a := Artifacts{}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	a["summary.json"] = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := WriteSweepCSV(&buf, res); err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	a["sweep.csv"] = bytes.Clone(buf.Bytes())

	for _, sym := range res.Symbols() {
		best := res.Instruments[sym].Best
		if best == nil {
			continue
		}
		buf.Reset()
		if err := WriteTradesCSV(&buf, sym, best.Trades); err != nil {
			return nil, fmt.Errorf("trades %s: %w", sym, err)
		}
		a["trades/"+sym+".csv"] = bytes.Clone(buf.Bytes())
	}
	return a, nil
}

// PortfolioArtifacts renders a portfolio run: summary.json and the trades
// of every member.
func PortfolioArtifacts(res *backtest.PortfolioResult) (Artifacts, error) {
	a := Artifacts{}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	a["summary.json"] = bytes.Clone(buf.Bytes())

	for _, sym := range res.Instruments {
		buf.Reset()
		if err := WriteTradesCSV(&buf, sym, res.Members[sym].Trades); err != nil {
			return nil, fmt.Errorf("trades %s: %w", sym, err)
		}
		a["trades/"+sym+".csv"] = bytes.Clone(buf.Bytes())
	}
	return a, nil
}

// Publish writes every artifact under runs/<runID>/ and returns the stored
// paths in sorted order.
func Publish(ctx context.Context, store archive.Storage, runID string, artifacts Artifacts) ([]string, error) {
	if runID == "" {
		return nil, fmt.Errorf("publish: empty run id")
	}
	paths := make([]string, 0, len(artifacts))
	for _, name := range artifacts.Names() {
		p := "runs/" + runID + "/" + name
		if err := store.Write(ctx, p, artifacts[name]); err != nil {
			return paths, fmt.Errorf("publish %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatNull(v float64, valid bool) string {
	if !valid {
		return ""
	}
	return formatF(v)
}

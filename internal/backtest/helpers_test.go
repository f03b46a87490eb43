package backtest

import (
	"testing"
	"time"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// scenarioCloses rises, dips and recovers; SMA(2)/SMA(3) crosses three times.
var scenarioCloses = []float64{10, 11, 12, 11, 10, 11, 12, 13}

func makeSeries(t *testing.T, symbol string, closes ...float64) core.Series {
	t.Helper()
	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{
			Symbol:   symbol,
			Interval: core.Interval1d,
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Time:     testBase.AddDate(0, 0, i),
		}
	}
	s, err := core.NewSeries(symbol, core.Interval1d, bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func mustCrossover(t *testing.T, fast, slow int, ma strategy.MAType, longOnly bool) strategy.Params {
	t.Helper()
	p, err := strategy.Crossover(fast, slow, ma, longOnly)
	if err != nil {
		t.Fatalf("Crossover(%d, %d): %v", fast, slow, err)
	}
	return p
}

func positions(vals ...int) []core.Position {
	out := make([]core.Position, len(vals))
	for i, v := range vals {
		out[i] = core.Position(v)
	}
	return out
}

package backtest

import (
	"math"
	"testing"

	"github.com/newthinker/macross/internal/core"
)

func TestSimulateTrades_LongOnly(t *testing.T) {
	s := makeSeries(t, "AAPL", scenarioCloses...)
	trades := SimulateTrades(s, positions(0, 0, 1, 1, 0, 0, 1, 1))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	first := trades[0]
	if first.EntryPrice != 12 || first.ExitPrice != 10 || first.Profit != -2 {
		t.Errorf("first trade = %+v, want 12 -> 10 for -2", first)
	}
	if first.ClosedAtEnd {
		t.Error("first trade should close on a signal")
	}

	last := trades[1]
	if last.EntryPrice != 12 || last.ExitPrice != 13 || last.Profit != 1 {
		t.Errorf("last trade = %+v, want 12 -> 13 for +1", last)
	}
	if !last.ClosedAtEnd {
		t.Error("last trade should be force-closed at the final bar")
	}
	if !last.ExitTime.Equal(s.Last().Time) {
		t.Errorf("forced close at %v, want %v", last.ExitTime, s.Last().Time)
	}

	if got := TotalProfit(trades); got != -1 {
		t.Errorf("TotalProfit = %f, want -1", got)
	}
}

func TestSimulateTrades_ReverseOnSameBar(t *testing.T) {
	s := makeSeries(t, "AAPL", scenarioCloses...)
	trades := SimulateTrades(s, positions(0, 0, 1, 1, -1, -1, 1, 1))

	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}

	want := []struct {
		dir    core.Direction
		entry  float64
		exit   float64
		profit float64
	}{
		{core.DirectionLong, 12, 10, -2},
		{core.DirectionShort, 10, 12, -2},
		{core.DirectionLong, 12, 13, 1},
	}
	for i, w := range want {
		got := trades[i]
		if got.Direction != w.dir || got.EntryPrice != w.entry || got.ExitPrice != w.exit || got.Profit != w.profit {
			t.Errorf("trade %d = %+v, want %v %v -> %v (%v)", i, got, w.dir, w.entry, w.exit, w.profit)
		}
	}

	// Reversal exits and re-enters on the same bar
	if !trades[0].ExitTime.Equal(trades[1].EntryTime) {
		t.Errorf("reversal exit %v != entry %v", trades[0].ExitTime, trades[1].EntryTime)
	}
}

func TestSimulateTrades_NoPositions(t *testing.T) {
	s := makeSeries(t, "AAPL", scenarioCloses...)
	if trades := SimulateTrades(s, positions(0, 0, 0, 0, 0, 0, 0, 0)); len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

func TestSimulateReturns_Lagged(t *testing.T) {
	s := makeSeries(t, "AAPL", scenarioCloses...)
	r := SimulateReturns(s, positions(0, 0, 1, 1, 0, 0, 1, 1), ReturnSimple)

	want := []float64{0, 0, -1.0 / 12, -1.0 / 11, 0, 0, 1.0 / 12}
	if r.Len() != len(want) {
		t.Fatalf("expected %d returns, got %d", len(want), r.Len())
	}
	for i, w := range want {
		if math.Abs(r.Values[i]-w) > 1e-12 {
			t.Errorf("return[%d] = %f, want %f", i, r.Values[i], w)
		}
		if !r.Times[i].Equal(s.Bars[i+1].Time) {
			t.Errorf("return[%d] time = %v, want %v", i, r.Times[i], s.Bars[i+1].Time)
		}
	}
}

// A position taken at the close of bar t must not earn bar t's own move.
func TestSimulateReturns_NoLookAhead(t *testing.T) {
	s := makeSeries(t, "AAPL", 10, 20)

	entersLate := SimulateReturns(s, positions(0, 1), ReturnSimple)
	if entersLate.Values[0] != 0 {
		t.Errorf("position entered on the up bar earned %f", entersLate.Values[0])
	}

	heldBefore := SimulateReturns(s, positions(1, 0), ReturnSimple)
	if heldBefore.Values[0] != 1 {
		t.Errorf("position held into the up bar earned %f, want 1", heldBefore.Values[0])
	}
}

// Delaying every position by one more bar must change every return when
// no bar is flat and the position flips on every bar.
func TestSimulateReturns_ExtraLagChangesEveryValue(t *testing.T) {
	s := makeSeries(t, "AAPL", 10, 11, 12, 11, 13, 12, 14, 13)
	pos := positions(1, -1, 1, -1, 1, -1, 1, -1)
	shifted := append([]core.Position{core.Flat}, pos[:len(pos)-1]...)

	base := SimulateReturns(s, pos, ReturnSimple)
	late := SimulateReturns(s, shifted, ReturnSimple)
	if base.Len() != s.Len()-1 || late.Len() != base.Len() {
		t.Fatalf("expected %d returns, got %d and %d", s.Len()-1, base.Len(), late.Len())
	}
	for i := range base.Values {
		if base.Values[i] == late.Values[i] {
			t.Errorf("return[%d] unchanged by extra lag: %f", i, base.Values[i])
		}
	}
}

func TestSimulateReturns_Short(t *testing.T) {
	s := makeSeries(t, "AAPL", 10, 8)
	r := SimulateReturns(s, positions(-1, -1), ReturnSimple)
	if math.Abs(r.Values[0]-0.2) > 1e-12 {
		t.Errorf("short return = %f, want 0.2", r.Values[0])
	}
}

func TestSimulateReturns_Log(t *testing.T) {
	s := makeSeries(t, "AAPL", 10, 20, 10)
	r := SimulateReturns(s, positions(1, 1, 1), ReturnLog)
	if math.Abs(r.Values[0]-math.Log(2)) > 1e-12 {
		t.Errorf("log return[0] = %f, want ln 2", r.Values[0])
	}
	if math.Abs(r.Values[0]+r.Values[1]) > 1e-12 {
		t.Errorf("log returns should cancel, got %v", r.Values)
	}
}

// Holding long over the whole series matches buy-and-hold in both modes.
func TestSimulate_BuyAndHoldRoundTrip(t *testing.T) {
	s := makeSeries(t, "AAPL", scenarioCloses...)
	pos := positions(1, 1, 1, 1, 1, 1, 1, 1)

	out := Simulate(s, pos, ReturnSimple)
	if len(out.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out.Trades))
	}
	if got := TotalProfit(out.Trades); got != 3 {
		t.Errorf("TotalProfit = %f, want 3", got)
	}

	curve := CumulativeCurve(out.Returns.Values, ReturnSimple)
	if got := curve[len(curve)-1] - 1; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("cumulative return = %f, want 0.3", got)
	}
}

func TestSimulate_EmptyAndSingleBar(t *testing.T) {
	empty := Simulate(core.Series{}, nil, ReturnSimple)
	if len(empty.Trades) != 0 || empty.Returns.Len() != 0 {
		t.Errorf("empty series produced %d trades, %d returns", len(empty.Trades), empty.Returns.Len())
	}

	single := Simulate(makeSeries(t, "AAPL", 10), positions(1), ReturnSimple)
	if single.Returns.Len() != 0 {
		t.Errorf("single bar produced %d returns", single.Returns.Len())
	}
	if len(single.Trades) != 1 || single.Trades[0].Profit != 0 || !single.Trades[0].ClosedAtEnd {
		t.Errorf("single bar trade = %+v, want zero-profit forced close", single.Trades)
	}
}

func TestSimulate_ShortPositionSlice(t *testing.T) {
	s := makeSeries(t, "AAPL", 10, 11, 12)
	out := Simulate(s, positions(1), ReturnSimple)

	if len(out.Trades) != 1 || out.Trades[0].ExitPrice != 11 {
		t.Errorf("missing positions should read as flat, trades = %+v", out.Trades)
	}
	if out.Returns.Values[1] != 0 {
		t.Errorf("return after positions end = %f, want 0", out.Returns.Values[1])
	}
}

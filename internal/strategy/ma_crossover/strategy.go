package ma_crossover

import (
	"fmt"
	"math"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/indicator"
	"github.com/newthinker/macross/internal/strategy"
)

// MACrossover holds long (or short) while the fast average sits above
// (or below) the slow one.
type MACrossover struct {
	params strategy.Params
}

// New creates a new MA Crossover strategy
func New(params strategy.Params) (*MACrossover, error) {
	if params.Kind != strategy.KindCrossover {
		return nil, core.WrapError(core.ErrInvalidParameters, fmt.Errorf("expected crossover params, got %s", params.Kind))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &MACrossover{params: params}, nil
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover %s", m.params)
}

func (m *MACrossover) Params() strategy.Params {
	return m.params
}

// Positions computes both averages over closes. Bars before index slow-1
// are flat regardless of averaging kind, so SMA and EMA share one warm-up.
func (m *MACrossover) Positions(bars []core.OHLCV) []core.Position {
	positions := make([]core.Position, len(bars))
	if len(bars) < m.params.Slow {
		return positions
	}

	// Extract closing prices
	prices := make([]float64, len(bars))
	for i, bar := range bars {
		prices[i] = bar.Close
	}

	fastMA, slowMA := m.averages(prices)

	for i := m.params.Warmup(); i < len(bars); i++ {
		fast, slow := fastMA[i], slowMA[i]
		if math.IsNaN(fast) || math.IsNaN(slow) {
			continue
		}
		switch {
		case fast > slow:
			positions[i] = core.Long
		case fast < slow && !m.params.LongOnly:
			positions[i] = core.Short
		}
	}

	return positions
}

func (m *MACrossover) averages(prices []float64) (fast, slow []float64) {
	if m.params.MA == strategy.MAExponential {
		return indicator.EMA(prices, m.params.Fast), indicator.EMA(prices, m.params.Slow)
	}
	return indicator.SMA(prices, m.params.Fast), indicator.SMA(prices, m.params.Slow)
}

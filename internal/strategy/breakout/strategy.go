package breakout

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/indicator"
	"github.com/newthinker/macross/internal/strategy"
)

// Breakout is a stop-and-reverse channel strategy: a high above the prior
// n-bar high goes long, a low below the prior n-bar low leaves the long
// (into a short unless long-only).
type Breakout struct {
	params strategy.Params
}

// New creates a new Breakout strategy
func New(params strategy.Params) (*Breakout, error) {
	if params.Kind != strategy.KindBreakout {
		return nil, core.WrapError(core.ErrInvalidParameters, fmt.Errorf("expected breakout params, got %s", params.Kind))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Breakout{params: params}, nil
}

func (b *Breakout) Name() string {
	return "breakout"
}

func (b *Breakout) Description() string {
	return fmt.Sprintf("Channel Breakout %s", b.params)
}

func (b *Breakout) Params() strategy.Params {
	return b.params
}

// Positions scans bars in order; each position depends on the previous one.
func (b *Breakout) Positions(bars []core.OHLCV) []core.Position {
	n := b.params.Lookback
	positions := make([]core.Position, len(bars))
	if len(bars) <= n {
		return positions
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
	}
	priorHigh := indicator.PriorMax(highs, n)
	priorLow := indicator.PriorMin(lows, n)

	exit := core.Short
	if b.params.LongOnly {
		exit = core.Flat
	}

	pos := core.Flat
	for i := n; i < len(bars); i++ {
		brokeUp := highs[i] > priorHigh[i]
		brokeDown := lows[i] < priorLow[i]

		switch pos {
		case core.Flat:
			if brokeUp {
				pos = core.Long
			} else if brokeDown && !b.params.LongOnly {
				pos = core.Short
			}
		case core.Long:
			if brokeDown {
				pos = exit
			}
		case core.Short:
			if brokeUp {
				pos = core.Long
			}
		}
		positions[i] = pos
	}

	return positions
}

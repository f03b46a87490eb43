// internal/strategy/factory/factory.go
package factory

import (
	"fmt"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/strategy"
	"github.com/newthinker/macross/internal/strategy/breakout"
	"github.com/newthinker/macross/internal/strategy/ma_crossover"
)

// New creates the strategy matching the params kind.
func New(params strategy.Params) (strategy.Strategy, error) {
	switch params.Kind {
	case strategy.KindCrossover:
		return ma_crossover.New(params)
	case strategy.KindBreakout:
		return breakout.New(params)
	default:
		return nil, core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown strategy kind: %s", params.Kind))
	}
}

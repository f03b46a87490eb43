package strategy

import (
	"fmt"
	"strings"

	"github.com/newthinker/macross/internal/core"
)

// Kind selects the signal family
type Kind string

const (
	KindCrossover Kind = "crossover"
	KindBreakout  Kind = "breakout"
)

// MAType selects how moving averages are computed
type MAType string

const (
	MASimple      MAType = "sma"
	MAExponential MAType = "ema"
)

// ParseMAType accepts "sma"/"simple" and "ema"/"exponential".
func ParseMAType(s string) (MAType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sma", "simple":
		return MASimple, nil
	case "ema", "exponential":
		return MAExponential, nil
	default:
		return "", core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown moving average type %q", s))
	}
}

// Params is a validated strategy parameterization. Crossover uses Fast,
// Slow and MA; Breakout uses Lookback. Build it with Crossover or Breakout.
type Params struct {
	Kind     Kind   `json:"kind"`
	Fast     int    `json:"fast,omitempty"`
	Slow     int    `json:"slow,omitempty"`
	MA       MAType `json:"ma,omitempty"`
	Lookback int    `json:"lookback,omitempty"`
	LongOnly bool   `json:"long_only"`
}

// Crossover returns validated moving-average crossover parameters.
func Crossover(fast, slow int, ma MAType, longOnly bool) (Params, error) {
	p := Params{Kind: KindCrossover, Fast: fast, Slow: slow, MA: ma, LongOnly: longOnly}
	return p, p.Validate()
}

// Breakout returns validated channel breakout parameters.
func Breakout(lookback int, longOnly bool) (Params, error) {
	p := Params{Kind: KindBreakout, Lookback: lookback, LongOnly: longOnly}
	return p, p.Validate()
}

// Validate rejects non-positive windows, fast >= slow and unknown kinds.
func (p Params) Validate() error {
	switch p.Kind {
	case KindCrossover:
		if p.Fast <= 0 || p.Slow <= 0 {
			return core.WrapError(core.ErrInvalidParameters,
				fmt.Errorf("windows must be positive, got fast=%d slow=%d", p.Fast, p.Slow))
		}
		if p.Fast >= p.Slow {
			return core.WrapError(core.ErrInvalidParameters,
				fmt.Errorf("fast window %d must be below slow window %d", p.Fast, p.Slow))
		}
		if p.MA != MASimple && p.MA != MAExponential {
			return core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown moving average type %q", p.MA))
		}
	case KindBreakout:
		if p.Lookback <= 0 {
			return core.WrapError(core.ErrInvalidParameters,
				fmt.Errorf("lookback must be positive, got %d", p.Lookback))
		}
	default:
		return core.WrapError(core.ErrInvalidParameters, fmt.Errorf("unknown strategy kind %q", p.Kind))
	}
	return nil
}

// Warmup is the number of leading bars that can never carry a signal.
func (p Params) Warmup() int {
	if p.Kind == KindBreakout {
		return p.Lookback
	}
	return p.Slow - 1
}

// String renders the parameters compactly, e.g. "ema(4/17)" or "breakout(20)".
func (p Params) String() string {
	var s string
	if p.Kind == KindBreakout {
		s = fmt.Sprintf("breakout(%d)", p.Lookback)
	} else {
		s = fmt.Sprintf("%s(%d/%d)", p.MA, p.Fast, p.Slow)
	}
	if p.LongOnly {
		s += " long-only"
	}
	return s
}

// Strategy turns a price series into a position series.
type Strategy interface {
	Name() string
	Description() string
	Params() Params
	// Positions returns one position per bar. Implementations are pure:
	// the same bars always produce the same positions.
	Positions(bars []core.OHLCV) []core.Position
}

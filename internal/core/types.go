package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval Interval  `json:"interval"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume,omitempty"` // zero when the source has none
	Time     time.Time `json:"time"`
}

// Series is the ordered bar history of one instrument. It is treated as
// read-only once loaded.
type Series struct {
	Symbol   string
	Interval Interval
	Bars     []OHLCV
}

// NewSeries builds a series and validates bar ordering.
func NewSeries(symbol string, interval Interval, bars []OHLCV) (Series, error) {
	s := Series{Symbol: symbol, Interval: interval, Bars: bars}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Validate checks that timestamps are strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Time.After(s.Bars[i-1].Time) {
			return WrapError(ErrInvalidSeries,
				fmt.Errorf("%s: bar %d at %s does not follow %s", s.Symbol, i,
					s.Bars[i].Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339)))
		}
	}
	return nil
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars.
func (s Series) Empty() bool { return len(s.Bars) == 0 }

// Last returns the final bar. It panics on an empty series.
func (s Series) Last() OHLCV { return s.Bars[len(s.Bars)-1] }

// Closes extracts closing prices
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts bar highs
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts bar lows
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Between returns the sub-series with start <= Time <= end. The bar slice
// is shared with the receiver.
func (s Series) Between(start, end time.Time) Series {
	lo, hi := 0, len(s.Bars)
	for lo < hi && s.Bars[lo].Time.Before(start) {
		lo++
	}
	for hi > lo && s.Bars[hi-1].Time.After(end) {
		hi--
	}
	return Series{Symbol: s.Symbol, Interval: s.Interval, Bars: s.Bars[lo:hi]}
}

// Position is the exposure held after a bar closes.
type Position int8

const (
	Short Position = -1
	Flat  Position = 0
	Long  Position = 1
)

func (p Position) String() string {
	switch p {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Direction is the side of a closed trade
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Interval is a bar size such as "1d" or "1h".
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
)

// TradingDaysPerYear is the annualization base for daily bars.
const TradingDaysPerYear = 252

// BarsPerYear returns the default annualization factor for the interval.
// Intraday intervals scale from 24 hourly bars per trading day.
func (i Interval) BarsPerYear() float64 {
	switch Interval(strings.ToLower(string(i))) {
	case Interval1m:
		return TradingDaysPerYear * 24 * 60
	case Interval5m:
		return TradingDaysPerYear * 24 * 12
	case Interval15m:
		return TradingDaysPerYear * 24 * 4
	case Interval30m:
		return TradingDaysPerYear * 24 * 2
	case Interval1h:
		return TradingDaysPerYear * 24
	case Interval4h:
		return TradingDaysPerYear * 6
	case Interval1wk, "1w":
		return 52
	case Interval1mo:
		return 12
	default:
		return TradingDaysPerYear
	}
}

// NullFloat is a float statistic that may be undefined, e.g. a Sharpe ratio
// of a zero-variance series. It marshals to JSON null when invalid.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid NullFloat.
func Float(v float64) NullFloat { return NullFloat{Value: v, Valid: true} }

// MarshalJSON implements json.Marshaler.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// String formats the value, or "n/a" when undefined.
func (n NullFloat) String() string {
	if !n.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", n.Value)
}

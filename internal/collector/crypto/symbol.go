// Package crypto holds the trading pair handling shared by the exchange
// providers.
package crypto

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/macross/internal/core"
)

// quotes are checked in order, so USDT wins over a trailing USDC or BTC.
var quotes = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

var pairPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// Pair is a base/quote trading pair such as BTC/USDT.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair accepts BTC, btc-usdt, BTC/USDT, ETH_BTC, BTCUSDT and BTC-USD.
// A bare base gets defaultQuote; a USD quote maps to USDT since the
// exchanges list tether pairs rather than dollar ones.
func ParsePair(input, defaultQuote string) (Pair, error) {
	if input == "" {
		return Pair{}, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbol cannot be empty"))
	}
	if len(input) > 30 {
		return Pair{}, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbol too long: %s", input))
	}

	s := strings.ToUpper(input)
	if base, quote, ok := splitSeparated(s); ok {
		if quote == "USD" {
			quote = "USDT"
		}
		return newPair(input, base, quote)
	}

	if !pairPattern.MatchString(s) {
		return Pair{}, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("invalid symbol format: %s", input))
	}
	for _, q := range quotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return newPair(input, strings.TrimSuffix(s, q), q)
		}
	}
	if strings.HasSuffix(s, "USD") && len(s) > 3 {
		return newPair(input, strings.TrimSuffix(s, "USD"), "USDT")
	}
	return newPair(input, s, strings.ToUpper(defaultQuote))
}

func splitSeparated(s string) (base, quote string, ok bool) {
	for _, sep := range []string{"-", "/", "_"} {
		if b, q, found := strings.Cut(s, sep); found {
			return b, q, true
		}
	}
	return "", "", false
}

func newPair(input, base, quote string) (Pair, error) {
	if !pairPattern.MatchString(base) || quote == "" || !pairPattern.MatchString(quote) {
		return Pair{}, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("invalid symbol format: %s", input))
	}
	return Pair{Base: base, Quote: quote}, nil
}

// String returns BASE/QUOTE.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Binance returns the concatenated form, e.g. BTCUSDT.
func (p Pair) Binance() string {
	return p.Base + p.Quote
}

// OKX returns the instrument ID form, e.g. BTC-USDT.
func (p Pair) OKX() string {
	return p.Base + "-" + p.Quote
}

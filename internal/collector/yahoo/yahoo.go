package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
)

const (
	baseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent = "Mozilla/5.0 (compatible; macross)"
)

// validSymbol matches symbols like AAPL, BRK-B, BTC-USD, ^NDX, 600519.SS, EURUSD=X
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}([.\-=][A-Za-z0-9]{1,6})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbol cannot be empty"))
	}
	if len(symbol) > 20 {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbol too long: %s", symbol))
	}
	if !validSymbol.MatchString(symbol) {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return nil
}

// Yahoo fetches equity, index and crypto bars from the Yahoo Finance chart API
type Yahoo struct {
	client  *http.Client
	baseURL string
}

// New creates a new Yahoo provider
func New() *Yahoo {
	return &Yahoo{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates a Yahoo provider with custom base URL (for testing)
func NewWithBaseURL(url string) *Yahoo {
	y := New()
	y.baseURL = url
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches historical OHLCV data
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	yahooInterval, err := toYahooInterval(interval)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("interval", yahooInterval)
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(end.Unix()))
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(y.toYahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &collector.StatusError{Provider: y.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if e := result.Chart.Error; e != nil {
		// Unknown and delisted tickers come back as a 200 with "Not Found".
		base := core.ErrNoData
		if strings.EqualFold(e.Code, "Not Found") {
			base = core.ErrInvalidSymbol
		}
		return nil, core.WrapError(base, fmt.Errorf("yahoo %s: %s", symbol, e.Description))
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	r := result.Chart.Result[0]
	quotes := r.Indicators.Quote[0]

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, high, low, close := at(quotes.Open, i), at(quotes.High, i), at(quotes.Low, i), at(quotes.Close, i)
		if open == nil || high == nil || low == nil || close == nil {
			continue // Skip missing data
		}
		var volume float64
		if v := at(quotes.Volume, i); v != nil {
			volume = *v
		}
		t := time.Unix(ts, 0).UTC()
		if t.Before(start) || t.After(end) {
			continue
		}
		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     *open,
			High:     *high,
			Low:      *low,
			Close:    *close,
			Volume:   volume,
			Time:     t,
		})
	}

	return collector.Normalize(data), nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func toYahooInterval(interval core.Interval) (string, error) {
	switch interval {
	case core.Interval1m, core.Interval5m, core.Interval15m, core.Interval30m, core.Interval1d, core.Interval1wk, core.Interval1mo:
		return string(interval), nil
	case core.Interval1h:
		return "60m", nil
	case "":
		return string(core.Interval1d), nil
	default:
		return "", core.WrapError(core.ErrInvalidParameters, fmt.Errorf("yahoo does not serve %s bars", interval))
	}
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

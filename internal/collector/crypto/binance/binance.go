package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/collector/crypto"
	"github.com/newthinker/macross/internal/core"
)

const (
	baseURL = "https://api.binance.com"

	// pageLimit is the maximum klines Binance returns per request
	pageLimit = 1000
)

// Binance fetches spot klines from the Binance REST API
type Binance struct {
	client    *http.Client
	baseURL   string
	pageDelay time.Duration
}

// New creates a new Binance provider
func New() *Binance {
	return &Binance{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:   baseURL,
		pageDelay: 500 * time.Millisecond,
	}
}

// NewWithBaseURL creates a Binance provider with custom base URL (for testing)
func NewWithBaseURL(url string) *Binance {
	b := New()
	b.baseURL = url
	b.pageDelay = 0
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

// FetchHistory pages through /api/v3/klines from start to end, advancing the
// cursor to one millisecond past the last open time of each page.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	p, err := crypto.ParsePair(symbol, "USDT")
	if err != nil {
		return nil, err
	}
	pair := p.Binance()
	binanceInterval, err := toInterval(interval)
	if err != nil {
		return nil, err
	}

	endMs := end.UnixMilli()
	cursor := start.UnixMilli()

	var data []core.OHLCV
	for cursor <= endMs {
		page, err := b.fetchPage(ctx, pair, binanceInterval, cursor, endMs)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			page[i].Symbol = symbol
			page[i].Interval = interval
		}
		data = append(data, page...)

		cursor = page[len(page)-1].Time.UnixMilli() + 1
		if len(page) < pageLimit {
			break
		}
		if err := sleep(ctx, b.pageDelay); err != nil {
			return nil, err
		}
	}

	return collector.Normalize(data), nil
}

func (b *Binance) fetchPage(ctx context.Context, pair, interval string, startMs, endMs int64) ([]core.OHLCV, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &collector.StatusError{Provider: b.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	data := make([]core.OHLCV, 0, len(klines))
	for _, k := range klines {
		if len(k) < 6 {
			continue
		}

		openTime, _ := k[0].(float64)
		openStr, _ := k[1].(string)
		highStr, _ := k[2].(string)
		lowStr, _ := k[3].(string)
		closeStr, _ := k[4].(string)
		volumeStr, _ := k[5].(string)

		open, _ := strconv.ParseFloat(openStr, 64)
		high, _ := strconv.ParseFloat(highStr, 64)
		low, _ := strconv.ParseFloat(lowStr, 64)
		close, _ := strconv.ParseFloat(closeStr, 64)
		volume, _ := strconv.ParseFloat(volumeStr, 64)

		data = append(data, core.OHLCV{
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
			Time:   time.UnixMilli(int64(openTime)).UTC(),
		})
	}

	return data, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toInterval(interval core.Interval) (string, error) {
	switch interval {
	case core.Interval1m, core.Interval5m, core.Interval15m, core.Interval30m,
		core.Interval1h, core.Interval4h, core.Interval1d:
		return string(interval), nil
	case core.Interval1wk, "1w":
		return "1w", nil
	case core.Interval1mo:
		return "1M", nil
	case "":
		return "1d", nil
	default:
		return "", core.WrapError(core.ErrInvalidParameters, fmt.Errorf("binance does not serve %s bars", interval))
	}
}

package okx

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
	baseURL = "https://www.okx.com"

	// pageLimit is the maximum candles history-candles returns per request
	pageLimit = 100
)

// OKX fetches spot candles from the OKX v5 market API
type OKX struct {
	client    *http.Client
	baseURL   string
	pageDelay time.Duration
}

// New creates a new OKX provider
func New() *OKX {
	return &OKX{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:   baseURL,
		pageDelay: 200 * time.Millisecond,
	}
}

// NewWithBaseURL creates an OKX provider with custom base URL (for testing)
func NewWithBaseURL(url string) *OKX {
	o := New()
	o.baseURL = url
	o.pageDelay = 0
	return o
}

func (o *OKX) Name() string {
	return "okx"
}


// FetchHistory walks /api/v5/market/history-candles backwards from end.
// OKX returns newest first and `after` selects candles older than the cursor.
func (o *OKX) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	pair, err := crypto.ParsePair(symbol, "USDT")
	if err != nil {
		return nil, err
	}
	bar, err := toInterval(interval)
	if err != nil {
		return nil, err
	}
	instID := pair.OKX()

	var data []core.OHLCV
	cursor := end.UnixMilli() + 1
	for {
		page, err := o.fetchPage(ctx, instID, bar, cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		done := false
		for _, c := range page {
			if c.Time.Before(start) {
				done = true
				continue
			}
			if c.Time.After(end) {
				continue
			}
			c.Symbol = symbol
			c.Interval = interval
			data = append(data, c)
		}

		cursor = page[len(page)-1].Time.UnixMilli()
		if done || len(page) < pageLimit {
			break
		}
		if err := sleep(ctx, o.pageDelay); err != nil {
			return nil, err
		}
	}

	return collector.Normalize(data), nil
}

func (o *OKX) fetchPage(ctx context.Context, instID, bar string, after int64) ([]core.OHLCV, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("after", strconv.FormatInt(after, 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/v5/market/history-candles?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &collector.StatusError{Provider: o.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result okxCandleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Code != "0" {
		// 51001: instrument ID does not exist
		if result.Code == "51001" {
			return nil, core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("okx: %s", result.Msg))
		}
		return nil, fmt.Errorf("okx error %s: %s", result.Code, result.Msg)
	}

	data := make([]core.OHLCV, 0, len(result.Data))
	for _, candle := range result.Data {
		if len(candle) < 6 {
			continue
		}

		ts, _ := strconv.ParseInt(candle[0], 10, 64)
		openPrice, _ := strconv.ParseFloat(candle[1], 64)
		high, _ := strconv.ParseFloat(candle[2], 64)
		low, _ := strconv.ParseFloat(candle[3], 64)
		closePrice, _ := strconv.ParseFloat(candle[4], 64)
		volume, _ := strconv.ParseFloat(candle[5], 64)

		data = append(data, core.OHLCV{
			Open:   openPrice,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
			Time:   time.UnixMilli(ts).UTC(),
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
	case core.Interval1m, core.Interval5m, core.Interval15m, core.Interval30m:
		return string(interval), nil
	case core.Interval1h:
		return "1H", nil
	case core.Interval4h:
		return "4H", nil
	case core.Interval1d, "":
		return "1Dutc", nil
	case core.Interval1wk, "1w":
		return "1Wutc", nil
	case core.Interval1mo:
		return "1Mutc", nil
	default:
		return "", core.WrapError(core.ErrInvalidParameters, fmt.Errorf("okx does not serve %s bars", interval))
	}
}

// OKX API response types
type okxCandleResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

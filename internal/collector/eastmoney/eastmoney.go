package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
)

const baseURL = "https://push2his.eastmoney.com"

// validSymbol matches A-share codes such as 600519.SH and 000001.SZ
var validSymbol = regexp.MustCompile(`^\d{6}\.(SH|SZ)$`)

// shanghai is the exchange clock kline timestamps are written in
var shanghai = time.FixedZone("CST", 8*60*60)

// Eastmoney fetches A-share klines from the Eastmoney history API
type Eastmoney struct {
	client  *http.Client
	baseURL string
}

// New creates a new Eastmoney provider
func New() *Eastmoney {
	return &Eastmoney{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

// NewWithBaseURL creates an Eastmoney provider with custom base URL (for testing)
func NewWithBaseURL(url string) *Eastmoney {
	e := New()
	e.baseURL = url
	return e
}

func (e *Eastmoney) Name() string {
	return "eastmoney"
}

// secID converts 600519.SH to 1.600519 for the Eastmoney API
// Shanghai = 1, Shenzhen = 0
func secID(symbol string) (string, error) {
	s := strings.ToUpper(symbol)
	if !validSymbol.MatchString(s) {
		return "", core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("invalid A-share symbol: %s", symbol))
	}
	code, exchange, _ := strings.Cut(s, ".")
	market := "1"
	if exchange == "SZ" {
		market = "0"
	}
	return market + "." + code, nil
}

// FetchHistory fetches forward-adjusted klines between start and end
func (e *Eastmoney) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	secid, err := secID(symbol)
	if err != nil {
		return nil, err
	}
	klt, err := toKlineType(interval)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("secid", secid)
	q.Set("klt", klt)
	q.Set("fqt", "1")
	q.Set("beg", start.In(shanghai).Format("20060102"))
	q.Set("end", end.In(shanghai).Format("20060102"))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/qt/stock/kline/get?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &collector.StatusError{Provider: e.Name(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Data == nil {
		return nil, nil
	}

	data := make([]core.OHLCV, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			continue
		}
		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}
		bar.Symbol = symbol
		bar.Interval = interval
		data = append(data, bar)
	}

	return collector.Normalize(data), nil
}

// parseKline reads "date,open,close,high,low,volume". Intraday dates carry
// a minute component.
func parseKline(line string) (core.OHLCV, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return core.OHLCV{}, false
	}

	layout := "2006-01-02"
	if strings.Contains(fields[0], " ") {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, fields[0], shanghai)
	if err != nil {
		return core.OHLCV{}, false
	}

	var v [5]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return core.OHLCV{}, false
		}
	}

	return core.OHLCV{
		Open:   v[0],
		Close:  v[1],
		High:   v[2],
		Low:    v[3],
		Volume: v[4],
		Time:   t.UTC(),
	}, true
}

func toKlineType(interval core.Interval) (string, error) {
	switch interval {
	case core.Interval1m:
		return "1", nil
	case core.Interval5m:
		return "5", nil
	case core.Interval15m:
		return "15", nil
	case core.Interval30m:
		return "30", nil
	case core.Interval1h:
		return "60", nil
	case core.Interval1d, "":
		return "101", nil
	case core.Interval1wk:
		return "102", nil
	case core.Interval1mo:
		return "103", nil
	default:
		return "", core.WrapError(core.ErrInvalidParameters, fmt.Errorf("eastmoney does not serve %s bars", interval))
	}
}

// Response types
type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
)

func TestYahoo_ImplementsProvider(t *testing.T) {
	var _ collector.Provider = (*Yahoo)(nil)
}

func TestYahoo_Name(t *testing.T) {
	y := New()
	if y.Name() != "yahoo" {
		t.Errorf("expected 'yahoo', got '%s'", y.Name())
	}
}

func TestYahoo_ToYahooSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"BTC-USD", "BTC-USD"},
		{"600519.SH", "600519.SS"}, // Shanghai -> SS for Yahoo
		{"000001.SZ", "000001.SZ"},
	}

	y := New()
	for _, tc := range tests {
		got := y.toYahooSymbol(tc.input)
		if got != tc.expected {
			t.Errorf("toYahooSymbol(%s) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestValidateSymbol(t *testing.T) {
	valid := []string{"AAPL", "BRK-B", "BTC-USD", "^NDX", "^IXIC", "0700.HK", "EURUSD=X"}
	for _, s := range valid {
		if err := validateSymbol(s); err != nil {
			t.Errorf("validateSymbol(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{"", "AAPL MSFT", "../etc", strings.Repeat("A", 21)}
	for _, s := range invalid {
		if err := validateSymbol(s); !errors.Is(err, core.ErrInvalidSymbol) {
			t.Errorf("validateSymbol(%q) = %v, want ErrInvalidSymbol", s, err)
		}
	}
}

func TestToYahooInterval(t *testing.T) {
	tests := []struct {
		input   core.Interval
		want    string
		wantErr bool
	}{
		{core.Interval1d, "1d", false},
		{core.Interval1h, "60m", false},
		{core.Interval1wk, "1wk", false},
		{"", "1d", false},
		{core.Interval4h, "", true},
	}

	for _, tc := range tests {
		got, err := toYahooInterval(tc.input)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("toYahooInterval(%s) = %q, %v", tc.input, got, err)
		}
	}
}

const chartJSON = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "currency": "USD"},
      "timestamp": [1704153600, 1704240000, 1704326400, 1704412800],
      "indicators": {"quote": [{
        "open":   [187.15, 184.22, null, 181.99],
        "high":   [188.44, 185.88, null, 182.76],
        "low":    [183.89, 183.43, null, 180.17],
        "close":  [185.64, 184.25, null, 181.18],
        "volume": [82488700, 58414500, null, null]
      }]}
    }],
    "error": null
  }
}`

func TestYahoo_FetchHistory(t *testing.T) {
	var gotPath, gotInterval string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chartJSON))
	}))
	defer server.Close()

	y := NewWithBaseURL(server.URL)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	bars, err := y.FetchHistory(context.Background(), "AAPL", start, end, core.Interval1h)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}

	if gotPath != "/AAPL" {
		t.Errorf("path = %s, want /AAPL", gotPath)
	}
	if gotInterval != "60m" {
		t.Errorf("interval = %s, want 60m", gotInterval)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars (null row skipped), got %d", len(bars))
	}
	if bars[0].Close != 185.64 || bars[0].Volume != 82488700 {
		t.Errorf("bar 0 = %+v", bars[0])
	}
	if bars[2].Volume != 0 {
		t.Errorf("missing volume should be zero, got %f", bars[2].Volume)
	}
	if !bars[0].Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("bar 0 time = %v", bars[0].Time)
	}
	if bars[1].Interval != core.Interval1h || bars[1].Symbol != "AAPL" {
		t.Errorf("bar 1 = %+v", bars[1])
	}
}

func TestYahoo_FetchHistory_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewWithBaseURL(server.URL).FetchHistory(context.Background(), "NOPE", time.Time{}, time.Now(), core.Interval1d)
	var se *collector.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Temporary() {
		t.Errorf("expected permanent 404 StatusError, got %v", err)
	}
}

func TestYahoo_FetchHistory_ChartError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *core.Error
	}{
		{"delisted", `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, core.ErrInvalidSymbol},
		{"bad range", `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Data doesn't exist for startDate"}}}`, core.ErrNoData},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			policy := collector.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
			p := collector.NewRetrying(NewWithBaseURL(server.URL), policy, nil, nil)
			_, err := p.FetchHistory(context.Background(), "ZZZZ", time.Time{}, time.Now(), core.Interval1d)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if calls != 1 {
				t.Errorf("expected a single request, got %d", calls)
			}
		})
	}
}

func TestYahoo_FetchHistory_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer server.Close()

	bars, err := NewWithBaseURL(server.URL).FetchHistory(context.Background(), "AAPL", time.Time{}, time.Now(), core.Interval1d)
	if err != nil || len(bars) != 0 {
		t.Errorf("expected empty result, got %d bars, err %v", len(bars), err)
	}
}

// Live API test, opt in with MACROSS_INTEGRATION=1
func TestYahoo_FetchHistory_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("MACROSS_INTEGRATION") == "" {
		t.Skip("set MACROSS_INTEGRATION to run live API tests")
	}

	y := New()
	end := time.Now()
	bars, err := y.FetchHistory(context.Background(), "AAPL", end.AddDate(0, -1, 0), end, core.Interval1d)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(bars) == 0 {
		t.Error("expected bars for AAPL")
	}
}

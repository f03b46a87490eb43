package eastmoney

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
)

func TestEastmoney_ImplementsProvider(t *testing.T) {
	var _ collector.Provider = (*Eastmoney)(nil)
}

func TestEastmoney_Name(t *testing.T) {
	e := New()
	if e.Name() != "eastmoney" {
		t.Errorf("expected 'eastmoney', got '%s'", e.Name())
	}
}

func TestSecID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"600519.SH", "1.600519", false}, // Shanghai = 1
		{"000001.SZ", "0.000001", false}, // Shenzhen = 0
		{"000001.sz", "0.000001", false},
		{"AAPL", "", true},
		{"60051.SH", "", true},
	}

	for _, tc := range tests {
		got, err := secID(tc.input)
		if got != tc.want || (err != nil) != tc.wantErr {
			t.Errorf("secID(%s) = %q, %v, want %q", tc.input, got, err, tc.want)
		}
		if err != nil && !errors.Is(err, core.ErrInvalidSymbol) {
			t.Errorf("secID(%s) error should be ErrInvalidSymbol, got %v", tc.input, err)
		}
	}
}

func TestToKlineType(t *testing.T) {
	tests := []struct {
		interval core.Interval
		expected string
		wantErr  bool
	}{
		{"1m", "1", false},
		{"5m", "5", false},
		{"1h", "60", false},
		{"1d", "101", false},
		{"1wk", "102", false},
		{"1mo", "103", false},
		{"4h", "", true},
	}

	for _, tc := range tests {
		got, err := toKlineType(tc.interval)
		if got != tc.expected || (err != nil) != tc.wantErr {
			t.Errorf("toKlineType(%s) = %q, %v, want %q", tc.interval, got, err, tc.expected)
		}
	}
}

func TestParseKline(t *testing.T) {
	bar, ok := parseKline("2024-01-02,1700.00,1685.01,1712.00,1680.00,32138")
	if !ok {
		t.Fatal("expected daily kline to parse")
	}
	if bar.Open != 1700 || bar.Close != 1685.01 || bar.High != 1712 || bar.Low != 1680 || bar.Volume != 32138 {
		t.Errorf("unexpected bar %+v", bar)
	}
	// Midnight in Shanghai is 16:00 UTC the previous day
	if want := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC); !bar.Time.Equal(want) {
		t.Errorf("expected %s, got %s", want, bar.Time)
	}

	bar, ok = parseKline("2024-01-02 10:30,1,2,3,0.5,10")
	if !ok || !bar.Time.Equal(time.Date(2024, 1, 2, 2, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected intraday bar %+v (ok=%v)", bar, ok)
	}

	if _, ok := parseKline("2024-01-02,x,2,3,4,5"); ok {
		t.Error("expected bad price to be rejected")
	}
	if _, ok := parseKline("2024-01-02,1,2"); ok {
		t.Error("expected short line to be rejected")
	}
}

func TestEastmoney_FetchHistory(t *testing.T) {
	var gotSecID, gotKlt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/qt/stock/kline/get" {
			http.NotFound(w, r)
			return
		}
		gotSecID = r.URL.Query().Get("secid")
		gotKlt = r.URL.Query().Get("klt")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"code":"600519","name":"Kweichow Moutai","klines":[
			"2024-01-03,1690.00,1695.00,1700.00,1680.00,20000",
			"2024-01-02,1700.00,1685.01,1712.00,1680.00,32138",
			"bad line"
		]}}`))
	}))
	defer server.Close()

	e := NewWithBaseURL(server.URL)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	bars, err := e.FetchHistory(context.Background(), "600519.SH", start, end, core.Interval1d)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}

	if gotSecID != "1.600519" || gotKlt != "101" {
		t.Errorf("unexpected query secid=%s klt=%s", gotSecID, gotKlt)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Time.Before(bars[1].Time) {
		t.Error("expected bars in ascending order")
	}
	if bars[0].Symbol != "600519.SH" || bars[0].Interval != core.Interval1d {
		t.Errorf("unexpected bar labels %+v", bars[0])
	}
}

func TestEastmoney_NoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	bars, err := NewWithBaseURL(server.URL).FetchHistory(context.Background(), "000001.SZ", time.Now().AddDate(0, -1, 0), time.Now(), core.Interval1d)
	if err != nil || len(bars) != 0 {
		t.Errorf("expected no bars and no error, got %d, %v", len(bars), err)
	}
}

func TestEastmoney_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewWithBaseURL(server.URL).FetchHistory(context.Background(), "000001.SZ", time.Now().AddDate(0, -1, 0), time.Now(), core.Interval1d)
	var se *collector.StatusError
	if !errors.As(err, &se) || !se.Temporary() {
		t.Errorf("expected temporary StatusError, got %v", err)
	}
}

package collector

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/newthinker/macross/internal/core"
)

// Provider fetches historical bars for one instrument
type Provider interface {
	// Name returns the provider identifier (e.g., "yahoo", "binance")
	Name() string

	// FetchHistory returns bars with start <= Time <= end in ascending order.
	// An instrument with no bars in range yields an empty slice, not an error.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error)
}

// StatusError reports a non-200 response from an upstream API
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Normalize sorts bars by time and drops duplicate timestamps, keeping the
// last occurrence. Providers occasionally repeat the live bar.
func Normalize(bars []core.OHLCV) []core.OHLCV {
	if len(bars) < 2 {
		return bars
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Time.Equal(out[len(out)-1].Time) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

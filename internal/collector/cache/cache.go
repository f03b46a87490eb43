// Package cache keeps fetched bars as CSV files in an archive so repeated
// runs over the same range do not hit the upstream API.
package cache

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/collector"
	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/storage/archive"
	"go.uber.org/zap"
)

const keyTimeFormat = "20060102T150405"

var header = []string{"time", "open", "high", "low", "close", "volume"}

// Cached wraps a Provider with a CSV read-through cache
type Cached struct {
	provider collector.Provider
	store    archive.Storage
	logger   *zap.Logger
}

// New wraps p, storing bars in store.
func New(p collector.Provider, store archive.Storage, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{provider: p, store: store, logger: logger}
}

func (c *Cached) Name() string {
	return c.provider.Name()
}

// Key returns the archive path for one provider request.
func Key(provider, symbol string, interval core.Interval, start, end time.Time) string {
	safe := strings.NewReplacer("/", "_", "^", "_", "=", "_").Replace(symbol)
	return fmt.Sprintf("prices/%s/%s/%s_%s_%s.csv", provider, interval, safe,
		start.UTC().Format(keyTimeFormat), end.UTC().Format(keyTimeFormat))
}

// FetchHistory serves bars from the archive when present, otherwise fetches
// them and stores the result. Empty responses are not cached. A corrupt
// entry is refetched and overwritten.
func (c *Cached) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	key := Key(c.provider.Name(), symbol, interval, start, end)

	data, err := c.store.Read(ctx, key)
	switch {
	case err == nil:
		bars, perr := Decode(bytes.NewReader(data), symbol, interval)
		if perr == nil {
			c.logger.Debug("cache hit", zap.String("key", key), zap.Int("bars", len(bars)))
			return bars, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(perr))
	case errors.Is(err, core.ErrNotFound):
	default:
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	bars, err := c.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	var buf bytes.Buffer
	if err := Encode(&buf, bars); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := c.store.Write(ctx, key, buf.Bytes()); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return bars, nil
}

// Encode writes bars as CSV with a header row.
func Encode(w io.Writer, bars []core.OHLCV) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode parses CSV written by Encode.
func Decode(r io.Reader, symbol string, interval core.Interval) ([]core.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0][0] != header[0] {
		return nil, fmt.Errorf("missing header")
	}

	bars := make([]core.OHLCV, 0, len(rows)-1)
	for i, row := range rows[1:] {
		t, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		var v [5]float64
		for j := range v {
			v[j], err = strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, header[j+1], err)
			}
		}
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     v[0],
			High:     v[1],
			Low:      v[2],
			Close:    v[3],
			Volume:   v[4],
			Time:     t.UTC(),
		})
	}
	return bars, nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

package collector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/newthinker/macross/internal/core"
	"go.uber.org/zap"
)

// RetryPolicy bounds how a failed fetch is retried
type RetryPolicy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// DefaultRetryPolicy returns three attempts starting five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 5 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// FetchRecorder receives per-attempt outcomes; *metrics.Registry satisfies it.
type FetchRecorder interface {
	RecordFetch(provider, status string)
}

// Retrying wraps a Provider with exponential backoff. Errors that cannot
// succeed on retry (bad symbol, 4xx responses) are returned immediately.
type Retrying struct {
	provider Provider
	policy   RetryPolicy
	logger   *zap.Logger
	recorder FetchRecorder
}

// NewRetrying wraps p with the given policy.
func NewRetrying(p Provider, policy RetryPolicy, logger *zap.Logger, recorder FetchRecorder) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{provider: p, policy: policy, logger: logger, recorder: recorder}
}

func (r *Retrying) Name() string {
	return r.provider.Name()
}

// FetchHistory implements Provider
func (r *Retrying) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval core.Interval) ([]core.OHLCV, error) {
	var (
		bars    []core.OHLCV
		attempt int
	)

	op := func() error {
		attempt++
		var err error
		bars, err = r.provider.FetchHistory(ctx, symbol, start, end, interval)
		if err == nil {
			r.record("success")
			return nil
		}
		if !retryable(err) {
			r.record("permanent_error")
			return backoff.Permanent(err)
		}
		r.record("error")
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("fetch failed, retrying",
			zap.String("provider", r.provider.Name()),
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, r.policy.backOff(ctx), notify); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	return bars, nil
}

func (r *Retrying) record(status string) {
	if r.recorder != nil {
		r.recorder.RecordFetch(r.provider.Name(), status)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, core.ErrInvalidSymbol) || errors.Is(err, core.ErrInvalidParameters) ||
		errors.Is(err, core.ErrNoData) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics for the scrape endpoint
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	backtestsTotal    *prometheus.CounterVec
	backtestDuration  prometheus.Histogram
	sweepCellsTotal   *prometheus.CounterVec
	sweepsTotal       prometheus.Counter
	sweepDuration     prometheus.Histogram
	sweepInstruments  prometheus.Gauge
	sweepGridCells    prometheus.Gauge
	fetchAttempts     *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_backtests_total",
			Help: "Total number of single-instrument backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "macross_backtest_duration_seconds",
			Help:    "Backtest duration in seconds, including the fetch",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.sweepCellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_sweep_cells_total",
			Help: "Total number of parameter grid cells evaluated",
		},
		[]string{"status"},
	)
	r.sweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "macross_sweeps_total",
			Help: "Total number of completed sweeps",
		},
	)
	r.sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "macross_sweep_duration_seconds",
			Help:    "Sweep duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900, 3600},
		},
	)
	r.sweepInstruments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_sweep_instruments",
			Help: "Number of instruments in the last sweep",
		},
	)
	r.sweepGridCells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "macross_sweep_grid_cells",
			Help: "Instrument by parameter cells in the last sweep",
		},
	)
	r.fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "macross_fetch_attempts_total",
			Help: "Total number of price history fetch attempts",
		},
		[]string{"provider", "status"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.sweepCellsTotal)
	reg.MustRegister(r.sweepsTotal)
	reg.MustRegister(r.sweepDuration)
	reg.MustRegister(r.sweepInstruments)
	reg.MustRegister(r.sweepGridCells)
	reg.MustRegister(r.fetchAttempts)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordSweepCell records one evaluated grid cell.
func (r *Registry) RecordSweepCell(status string) {
	r.sweepCellsTotal.WithLabelValues(status).Inc()
}

// RecordSweep records a sweep completion.
func (r *Registry) RecordSweep(instruments, cells int, duration float64) {
	r.sweepsTotal.Inc()
	r.sweepDuration.Observe(duration)
	r.sweepInstruments.Set(float64(instruments))
	r.sweepGridCells.Set(float64(cells))
}

// RecordFetch records one fetch attempt.
func (r *Registry) RecordFetch(provider, status string) {
	r.fetchAttempts.WithLabelValues(provider, status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the ID assigned to each request.
const RequestIDHeader = "X-Request-ID"

// knownPaths are the routes given their own label; anything else is
// folded into "other" so scanners cannot grow the label set.
var knownPaths = map[string]bool{
	"/":        true,
	"/metrics": true,
}

// statusRecorder remembers the status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func record(w http.ResponseWriter) *statusRecorder {
	if s, ok := w.(*statusRecorder); ok {
		return s
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func pathLabel(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}

// HTTPMiddleware records request count, latency and in-flight gauge.
func HTTPMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)
			reg.RecordRequest(r.Method, pathLabel(r.URL.Path), rec.status, time.Since(start).Seconds())
		})
	}
}

// LoggingMiddleware tags each request with a fresh ID, echoed back in
// RequestIDHeader, and logs one line per request.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := uuid.NewString()
			w.Header().Set(RequestIDHeader, id)

			rec := record(w)
			next.ServeHTTP(rec, r)

			logger.Info("http request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("client_ip", clientIP(r)),
			)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

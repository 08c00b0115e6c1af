package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	pp "net/http/pprof"

	"github.com/google/uuid"

	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

var (
	mRequests = metrics.Default.CounterVec("http_requests_total", "HTTP requests by status class", "class")
	mDuration = metrics.Default.Histogram("http_request_duration_ms", "HTTP request latency in milliseconds",
		[]float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 15000})
)

// Metrics keeps the last N request durations for quick quantiles.
type Metrics struct {
	mu        sync.Mutex
	durations []float64 // milliseconds, circular buffer
	idx       int
	count     int64
	n         int
}

func NewMetrics(capacity int) *Metrics {
	if capacity <= 0 {
		capacity = 256
	}
	return &Metrics{durations: make([]float64, capacity), n: capacity}
}

// Observe adds a duration sample in milliseconds.
func (m *Metrics) Observe(ms float64) {
	m.mu.Lock()
	m.durations[m.idx] = ms
	m.idx = (m.idx + 1) % m.n
	m.count++
	m.mu.Unlock()
}

// Snapshot returns the total count plus mean and quantiles of the recent
// samples.
func (m *Metrics) Snapshot() (count int64, avg, p50, p95 float64) {
	m.mu.Lock()
	var samples []float64
	if m.count < int64(m.n) {
		samples = append(samples, m.durations[:m.idx]...)
	} else {
		samples = append(samples, m.durations...)
	}
	count = m.count
	m.mu.Unlock()

	if len(samples) == 0 {
		return count, 0, 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	avg = sum / float64(len(samples))
	sort.Float64s(samples)
	p50 = samples[(len(samples)*50)/100]
	p95 = samples[(len(samples)*95)/100]
	return count, avg, p50, p95
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	sw.statusCode = statusCode
	sw.ResponseWriter.WriteHeader(statusCode)
}

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Middleware tags each request with an ID, times it and logs it at debug
// level. Server errors are logged at warn.
func Middleware(m *Metrics, log *logging.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Default()
	}
	cl := log.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(logging.ContextWithRequestID(r.Context(), id))

			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			ms := float64(elapsed.Microseconds()) / 1000
			m.Observe(ms)
			mDuration.Observe(ms)
			mRequests.With(strconv.Itoa(sw.statusCode/100) + "xx").Inc()

			fields := []logging.Field{
				logging.String("request_id", id),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", sw.statusCode),
				logging.Duration("elapsed", elapsed),
			}
			if sw.statusCode >= 500 {
				cl.Warn("request failed", fields...)
			} else {
				cl.Debug("request served", fields...)
			}
		})
	}
}

// MetricsHandler exposes runtime and request stats as JSON.
func MetricsHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		count, avg, p50, p95 := m.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time":             time.Now().Format(time.RFC3339),
			"requests_total":   count,
			"duration_ms_avg":  avg,
			"duration_ms_p50":  p50,
			"duration_ms_p95":  p95,
			"goroutines":       runtime.NumGoroutine(),
			"mem_alloc_bytes":  ms.Alloc,
			"heap_inuse_bytes": ms.HeapInuse,
			"gc_num":           ms.NumGC,
		})
	})
}

// RegisterPprof registers the standard pprof handlers under /debug/pprof/.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pp.Trace)
	mux.Handle("/debug/pprof/goroutine", pp.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pp.Handler("heap"))
	mux.Handle("/debug/pprof/block", pp.Handler("block"))
	mux.Handle("/debug/pprof/mutex", pp.Handler("mutex"))
}

// EnableProfiling toggles block and mutex profiling.
func EnableProfiling(enabled bool) {
	if enabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(5)
		return
	}
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}

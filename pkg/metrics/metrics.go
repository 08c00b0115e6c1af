package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Dependency-free metrics with Prometheus text exposition.

// Counter is a monotonically increasing number.
type Counter struct {
	name string
	help string
	val  int64
}

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.val, delta) }
func (c *Counter) Get() int64      { return atomic.LoadInt64(&c.val) }

// CounterVec is a family of counters split by one label, e.g. decision="REJECTED".
type CounterVec struct {
	name  string
	help  string
	label string
	mu    sync.RWMutex
	vals  map[string]*int64
}

// With returns the counter for a label value, creating it on first use.
func (v *CounterVec) With(value string) *LabeledCounter {
	v.mu.RLock()
	p, ok := v.vals[value]
	v.mu.RUnlock()
	if !ok {
		v.mu.Lock()
		if p, ok = v.vals[value]; !ok {
			p = new(int64)
			v.vals[value] = p
		}
		v.mu.Unlock()
	}
	return &LabeledCounter{val: p}
}

// LabeledCounter is one series of a CounterVec.
type LabeledCounter struct{ val *int64 }

func (c *LabeledCounter) Inc() { atomic.AddInt64(c.val, 1) }

// Get returns the current value of one label series.
func (v *CounterVec) Get(value string) int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if p, ok := v.vals[value]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// Gauge is an arbitrary number that can go up and down.
type Gauge struct {
	name string
	help string
	f64  uint64
}

func (g *Gauge) SetFloat64(v float64) { atomic.StoreUint64(&g.f64, math.Float64bits(v)) }
func (g *Gauge) AddFloat64(delta float64) {
	for {
		old := atomic.LoadUint64(&g.f64)
		nv := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(&g.f64, old, math.Float64bits(nv)) {
			return
		}
	}
}
func (g *Gauge) GetFloat64() float64 { return math.Float64frombits(atomic.LoadUint64(&g.f64)) }

// Histogram with fixed upper bounds; the last bucket is always +Inf.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     uint64
	count   uint64
}

func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.buckets, v)
	if i >= len(h.counts) {
		i = len(h.counts) - 1
	}
	atomic.AddUint64(&h.counts[i], 1)
	atomic.AddUint64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		nv := math.Float64frombits(old) + v
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(nv)) {
			return
		}
	}
}

// Since observes the milliseconds elapsed from start.
func (h *Histogram) Since(start time.Time) {
	h.Observe(float64(time.Since(start)) / float64(time.Millisecond))
}

// Registry holds all metrics.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	vecs       map[string]*CounterVec
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		vecs:       make(map[string]*CounterVec),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

var Default = NewRegistry()

func (r *Registry) Counter(name, help string) *Counter {
	name = sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) CounterVec(name, help, label string) *CounterVec {
	name = sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.vecs[name]; ok {
		return v
	}
	v := &CounterVec{name: name, help: help, label: label, vals: make(map[string]*int64)}
	r.vecs[name] = v
	return v
}

func (r *Registry) Gauge(name, help string) *Gauge {
	name = sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	name = sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	sorted := append([]float64{}, buckets...)
	sort.Float64s(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{name: name, help: help, buckets: sorted, counts: make([]uint64, len(sorted))}
	r.histograms[name] = h
	return h
}

// WriteTo renders every metric in Prometheus text format, sorted by name.
func (r *Registry) WriteTo(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range keys(r.counters) {
		c := r.counters[name]
		header(w, c.name, c.help, "counter")
		fmt.Fprintf(w, "%s %d\n", c.name, c.Get())
	}
	for _, name := range keys(r.vecs) {
		v := r.vecs[name]
		header(w, v.name, v.help, "counter")
		v.mu.RLock()
		for _, lv := range keys(v.vals) {
			fmt.Fprintf(w, "%s{%s=%q} %d\n", v.name, v.label, lv, atomic.LoadInt64(v.vals[lv]))
		}
		v.mu.RUnlock()
	}
	for _, name := range keys(r.gauges) {
		g := r.gauges[name]
		header(w, g.name, g.help, "gauge")
		fmt.Fprintf(w, "%s %g\n", g.name, g.GetFloat64())
	}
	for _, name := range keys(r.histograms) {
		h := r.histograms[name]
		header(w, h.name, h.help, "histogram")
		var cum uint64
		for i, ub := range h.buckets {
			cum += atomic.LoadUint64(&h.counts[i])
			le := fmt.Sprintf("%g", ub)
			if math.IsInf(ub, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, le, cum)
		}
		fmt.Fprintf(w, "%s_sum %g\n", h.name, math.Float64frombits(atomic.LoadUint64(&h.sum)))
		fmt.Fprintf(w, "%s_count %d\n", h.name, atomic.LoadUint64(&h.count))
	}
}

// Handler exposes the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WriteTo(w)
	})
}

// Handler exposes the Default registry.
func Handler() http.Handler { return Default.Handler() }

func header(w io.Writer, name, help, typ string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, strings.ReplaceAll(help, "\n", " "))
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

func sanitize(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
}

func keys[T any](m map[string]T) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

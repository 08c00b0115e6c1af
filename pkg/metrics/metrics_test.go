package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("geocode-calls", "calls")
	b := r.Counter("geocode_calls", "calls")
	if a != b {
		t.Error("sanitized names should resolve to the same counter")
	}
	a.Inc(2)
	if b.Get() != 2 {
		t.Errorf("Get = %d, want 2", b.Get())
	}
}

func TestWriteTo(t *testing.T) {
	r := NewRegistry()
	r.Counter("verifications_total", "Verifications").Inc(3)
	vec := r.CounterVec("alerts_total", "Alerts by kind", "kind")
	vec.With("CP_INVALID").Inc()
	vec.With("CP_INVALID").Inc()
	vec.With("STATE_MISMATCH").Inc()
	r.Gauge("catalog_records", "Records").SetFloat64(145000)
	h := r.Histogram("latency_ms", "Latency", []float64{100, 10})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE verifications_total counter",
		"verifications_total 3",
		`alerts_total{kind="CP_INVALID"} 2`,
		`alerts_total{kind="STATE_MISMATCH"} 1`,
		"catalog_records 145000",
		`latency_ms_bucket{le="10"} 1`,
		`latency_ms_bucket{le="100"} 2`,
		`latency_ms_bucket{le="+Inf"} 3`,
		"latency_ms_sum 555",
		"latency_ms_count 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("output lacks %q\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGaugeAdd(t *testing.T) {
	g := NewRegistry().Gauge("pending", "Pending reviews")
	g.SetFloat64(2)
	g.AddFloat64(-0.5)
	if got := g.GetFloat64(); got != 1.5 {
		t.Errorf("gauge = %v, want 1.5", got)
	}
}

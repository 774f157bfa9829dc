package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncModelLoads("ok")
	m.ObserveGeneration("ok", 1.5)
	m.ObserveRequest("GET", "/", "200", 0.01)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("genform")
	m.IncModelLoads("ok")
	m.ObserveGeneration("generation_error", 0)
	m.ObserveRequest("POST", "/", "200", 0.2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "genform_model_loads_total", map[string]string{"status": "ok"}) {
		t.Fatalf("expected model_loads metric")
	}
	if !hasMetric(families, "genform_generations_total", map[string]string{"status": "generation_error"}) {
		t.Fatalf("expected generations metric")
	}
	if hasMetric(families, "genform_generation_duration_seconds", map[string]string{"status": "generation_error"}) {
		t.Fatalf("failed generations must not be observed as latency")
	}
	if !hasMetric(families, "genform_http_requests_total", map[string]string{"method": "POST", "route": "/", "status": "200"}) {
		t.Fatalf("expected http_requests metric")
	}
}

func TestGenerationLatencyOnlyForSuccess(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("genform")
	m.ObserveGeneration(StatusOK, 1.5)
	m.ObserveGeneration("generation_error", 0)
	m.ObserveGeneration("not_loaded", 0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		switch mf.GetName() {
		case "genform_generation_duration_seconds":
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected one latency series, got %d", len(mf.GetMetric()))
			}
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 1 || h.GetSampleSum() != 1.5 {
				t.Errorf("expected a single 1.5s sample, got count=%d sum=%f", h.GetSampleCount(), h.GetSampleSum())
			}
		case "genform_generations_total":
			if len(mf.GetMetric()) != 3 {
				t.Errorf("expected three status series, got %d", len(mf.GetMetric()))
			}
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("genform")
	m.IncModelLoads("error")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `genform_model_loads_total{status="error"} 1`) {
		t.Fatalf("expected model_loads_total in output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	got := make(map[string]string, len(pairs))
	for _, p := range pairs {
		got[p.GetName()] = p.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

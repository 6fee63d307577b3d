package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vsbld/observability"
)

func TestObservabilityMiddlewareRecordsRequestMetrics(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Enabled: true}, nil)

	handler := obs.Middleware("visibilities.get")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := testutil.ToFloat64(observability.ModuleMetrics().RequestsVec().WithLabelValues("visibilities.get", http.MethodGet, "success"))
	req := httptest.NewRequest(http.MethodGet, "/v1/visibilities/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected handler to pass through a 200, got %d", res.Code)
	}
	if after := testutil.ToFloat64(observability.ModuleMetrics().RequestsVec().WithLabelValues("visibilities.get", http.MethodGet, "success")); after != before+1 {
		t.Fatalf("expected request counter to increment by 1, went from %f to %f", before, after)
	}
}

func TestObservabilityMiddlewareSkipsMetricsWhenDisabled(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{Enabled: false}, nil)

	handler := obs.Middleware("visibilities.get.disabled")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/visibilities/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected handler to pass through a 200, got %d", res.Code)
	}
	if got := testutil.ToFloat64(observability.ModuleMetrics().RequestsVec().WithLabelValues("visibilities.get.disabled", http.MethodGet, "success")); got != 0 {
		t.Fatalf("expected no metrics recorded while disabled, got %f", got)
	}
}

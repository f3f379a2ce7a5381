package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/connect", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "rdportal_request_duration_seconds" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "method" && lp.GetValue() == "POST" {
						if m.GetHistogram().GetSampleCount() != 1 {
							t.Errorf("expected 1 observation, got %d", m.GetHistogram().GetSampleCount())
						}
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("expected to find request_duration_seconds metric with method=POST")
	}
}

func TestMetricsMiddleware_StatusLabels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{name: "ok", status: http.StatusOK, label: "ok"},
		{name: "redirect", status: http.StatusFound, label: "ok"},
		{name: "client error", status: http.StatusBadRequest, label: "client_error"},
		{name: "server error", status: http.StatusInternalServerError, label: "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)

			handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/probe", nil))

			var m dto.Metric
			if err := metrics.RequestsTotal.WithLabelValues("POST", "/api/sessions/probe", tt.label).Write(&m); err != nil {
				t.Fatal(err)
			}
			if m.Counter.GetValue() != 1 {
				t.Errorf("expected count 1, got %f", m.Counter.GetValue())
			}
		})
	}
}

func TestMetricsMiddleware_SkipsScrapeAndHealth(t *testing.T) {
	for _, path := range []string{"/metrics", "/health", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)

			handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			if n := testutil.CollectAndCount(metrics.RequestsTotal); n != 0 {
				t.Errorf("requests_total series = %d, want 0 for %s", n, path)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/api/sessions/connect", "/api/sessions/connect"},
		{"/api/sessions/active", "/api/sessions/active"},
		{"/api/sessions/recent-ips", "/api/sessions/recent-ips"},
		{"/api/sessions/events", "/api/sessions/events"},
		{"/api/sessions/disconnect-all", "/api/sessions/disconnect-all"},
		{"/api/sessions/disconnect/3f2a", "/api/sessions/disconnect/{id}"},
		{"/api/sessions/3f2a/rdp", "/api/sessions/{id}/rdp"},
		{"/api/sessions/a/b/rdp", "other"},
		{"/api/sessions/unknown", "other"},
		{"/favicon.ico", "other"},
		{"/wp-admin", "other"},
	}
	for _, tt := range tests {
		if got := routeLabel(tt.path); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

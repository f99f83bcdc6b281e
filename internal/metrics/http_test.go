package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/records/{site}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, target := range []string{"/v1/records/dalben", "/v1/records/paguemenos", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/records/{site}", "200")); got != 2 {
		t.Errorf("records requests = %v; want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/missing", "404")); got != 1 {
		t.Errorf("missing requests = %v; want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration, "catalog_http_request_duration_seconds"); n != 2 {
		t.Errorf("duration series = %d; want 2", n)
	}
}

func TestNewHTTPDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := NewHTTP(reg); err != nil {
		t.Fatalf("first NewHTTP() error = %v", err)
	}
	if _, err := NewHTTP(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

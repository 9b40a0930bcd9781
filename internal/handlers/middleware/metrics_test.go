package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware(t *testing.T) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_duration"}, []string{"method", "route", "status"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := MetricsMiddleware(duration)(mux)

	for _, path := range []string{"/items/1", "/items/2", "/other"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2, testutil.CollectAndCount(duration), "two label sets")
	require.True(t, duration.DeleteLabelValues(http.MethodGet, "GET /items/{id}", "404"), "route is the matched pattern")
	require.True(t, duration.DeleteLabelValues(http.MethodGet, "unmatched", "404"))
}

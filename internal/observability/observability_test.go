package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	tel, err := Setup(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(tel.Middleware)
	r.Get("/api/readings/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rw := httptest.NewRecorder()
		r.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/readings/"+id, nil))
		require.Equal(t, http.StatusNotFound, rw.Code)
	}

	got := testutil.ToFloat64(tel.requests.WithLabelValues("/api/readings/{id}", http.MethodGet, "404"))
	require.Equal(t, 2.0, got)
}

func TestHandlerExposesPatchCounter(t *testing.T) {
	tel, err := Setup(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	tel.RecordPatch(context.Background(), "readings", "temperatureC", 3)

	rw := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rw.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "readings_service_patch_records"), string(body))
}

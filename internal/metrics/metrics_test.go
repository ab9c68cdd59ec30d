package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/static/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/basemaps", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"basemaps":[]}`))
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/static/*", "404"))
	beforeOK := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/basemaps", "200"))

	for _, p := range []string{"/static/a.css", "/static/js/b.js"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/basemaps", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/static/*", "404")))
	assert.Equal(t, beforeOK+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/basemaps", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}

func TestRoutePatternWithoutRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/plain?x=1", nil)
	assert.Equal(t, "/plain", RoutePattern(req))
}

func TestRecordBoundaryLoad(t *testing.T) {
	RecordBoundaryLoad([]LayerStat{{Name: "counties", Features: 3}, {Name: "states", Features: 50}}, 1, 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(boundaryLayers))
	assert.Equal(t, float64(1), testutil.ToFloat64(boundarySkipped))
	assert.Equal(t, float64(50), testutil.ToFloat64(boundaryFeatures.WithLabelValues("states")))

	// A later load replaces the per-layer series.
	RecordBoundaryLoad([]LayerStat{{Name: "states", Features: 49}}, 0, 0.01)
	assert.Equal(t, 1, testutil.CollectAndCount(boundaryFeatures))
	assert.Equal(t, float64(49), testutil.ToFloat64(boundaryFeatures.WithLabelValues("states")))
}

func TestIncReload(t *testing.T) {
	ok := testutil.ToFloat64(reloadsTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(reloadsTotal.WithLabelValues("failure"))

	IncReload(nil)
	IncReload(errors.New("boom"))
	IncReload(errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(reloadsTotal.WithLabelValues("success")))
	assert.Equal(t, failed+2, testutil.ToFloat64(reloadsTotal.WithLabelValues("failure")))
}

func TestPromhttpExposure(t *testing.T) {
	IncMapRendered("OpenStreetMap")
	RecordWebsocketClients(2)
	IncBroadcast("full_reload")

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	_, err = io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `atlas_maps_rendered_total{basemap="OpenStreetMap"}`)
	assert.Contains(t, body.String(), "atlas_websocket_clients 2")
	assert.Contains(t, body.String(), `atlas_websocket_broadcasts_total{type="full_reload"}`)
}

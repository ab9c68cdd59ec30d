package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	boundaryLayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_boundary_layers",
		Help: "Number of boundary overlays loaded (last load)",
	})

	boundaryFeatures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atlas_boundary_features",
		Help: "Number of features per boundary overlay (last load)",
	}, []string{"layer"})

	boundarySkipped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_boundary_skipped",
		Help: "Number of boundary files skipped because of errors (last load)",
	})

	boundaryLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_boundary_load_duration_seconds",
		Help:    "Time spent loading the boundary directory",
		Buckets: prometheus.DefBuckets,
	})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_reloads_total",
		Help: "Boundary reloads triggered by file changes, by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	mapsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_maps_rendered_total",
		Help: "Maps rendered per selected basemap",
	}, []string{"basemap"})

	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_websocket_clients",
		Help: "Connected live reload clients",
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_websocket_broadcasts_total",
		Help: "Live reload messages broadcast, by message type",
	}, []string{"type"})
)

// LayerStat is the per-overlay input to RecordBoundaryLoad.
type LayerStat struct {
	Name     string
	Features int
}

// RecordBoundaryLoad publishes the result of a boundary directory load.
func RecordBoundaryLoad(layers []LayerStat, skipped int, seconds float64) {
	boundaryLayers.Set(float64(len(layers)))
	boundarySkipped.Set(float64(skipped))
	boundaryFeatures.Reset()
	for _, l := range layers {
		boundaryFeatures.WithLabelValues(l.Name).Set(float64(l.Features))
	}
	boundaryLoadDuration.Observe(seconds)
}

// IncReload counts a watcher-triggered reload.
func IncReload(err error) {
	if err != nil {
		reloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	reloadsTotal.WithLabelValues("success").Inc()
}

func IncMapRendered(basemap string) { mapsRendered.WithLabelValues(basemap).Inc() }

func RecordWebsocketClients(n int) { websocketClients.Set(float64(n)) }

func IncBroadcast(msgType string) { broadcastsTotal.WithLabelValues(msgType).Inc() }

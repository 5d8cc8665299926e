package grid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of one coordinator.
type Metrics struct {
	TileRequests  prometheus.Counter
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	FetchFailures prometheus.Counter
	StaleResults  prometheus.Counter
	InflightTiles prometheus.Gauge
	Edits         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered so several coordinators can coexist in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TileRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradebook_grid_tile_requests_total",
			Help: "Tile fetches issued to the backend",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradebook_grid_tile_cache_hits_total",
			Help: "Tile lookups satisfied by a loaded or in-flight tile",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradebook_grid_tile_cache_misses_total",
			Help: "Tile lookups that required a fetch",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradebook_grid_tile_fetch_failures_total",
			Help: "Tile fetches that returned an error",
		}),
		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradebook_grid_stale_results_total",
			Help: "Fetch results discarded because the mark set changed",
		}),
		InflightTiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gradebook_grid_inflight_tiles",
			Help: "Tiles currently being fetched",
		}),
		Edits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gradebook_grid_edits_total",
			Help: "Edits by path (single, bulk) and outcome",
		}, []string{"path", "outcome"}),
	}
}

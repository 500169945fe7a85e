// Package observability holds the Prometheus metrics recorded while searching
// catalogs and selecting products.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of catalog search requests by HTTP status.",
		},
		[]string{"catalog", "status"},
	)

	catalogRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of catalog search requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"catalog"},
	)

	catalogRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_retries_total",
			Help: "Catalog queries retried after a transient failure.",
		},
		[]string{"catalog"},
	)

	tileSearchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_search_outcomes_total",
			Help: "Best product searches by outcome.",
		},
		[]string{"outcome"},
	)

	featureSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_selections_total",
			Help: "Grid features by product selection result.",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests served by the results API.",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveCatalogRequest records one HTTP exchange with a catalog. A status of
// zero means the request never got a response.
func ObserveCatalogRequest(catalog string, status int, durationSeconds float64) {
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	catalogRequestsTotal.WithLabelValues(catalog, st).Inc()
	catalogRequestDurationSeconds.WithLabelValues(catalog).Observe(durationSeconds)
}

// IncCatalogRetry counts a retried catalog query.
func IncCatalogRetry(catalog string) {
	catalogRetriesTotal.WithLabelValues(catalog).Inc()
}

// IncTileOutcome counts a finished tile search.
func IncTileOutcome(outcome string) {
	tileSearchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// AddFeatureSelections counts n features with the given selection result.
func AddFeatureSelections(result string, n int) {
	if n <= 0 {
		return
	}
	featureSelectionsTotal.WithLabelValues(result).Add(float64(n))
}

// IncHTTPRequest counts one request served by the results API. route is the
// matched pattern, not the raw path.
func IncHTTPRequest(method, route string, status int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

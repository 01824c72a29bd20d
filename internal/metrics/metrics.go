package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation cycles

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpmsync_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"phase", "status"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cpmsync_cycle_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpmsync_last_sync_timestamp_seconds",
			Help: "Unix time of the last successful reconciliation",
		},
	)

	// Credentials

	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpmsync_token_exchanges_total",
			Help: "Total number of credential exchanges",
		},
		[]string{"reason", "status"},
	)

	// Remote API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpmsync_api_requests_total",
			Help: "Total number of remote API requests",
		},
		[]string{"resource", "code"},
	)

	// Graph

	EntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpmsync_entities_total",
			Help: "Reconciled entities by type and outcome",
		},
		[]string{"entity", "outcome"},
	)
)

// ObserveAPIRequest records one remote request. A zero code means the
// request never produced a response.
func ObserveAPIRequest(resource string, code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	APIRequestsTotal.WithLabelValues(resource, label).Inc()
}

func RecordEntities(entity string, created, updated, skipped int) {
	if created > 0 {
		EntitiesTotal.WithLabelValues(entity, "created").Add(float64(created))
	}
	if updated > 0 {
		EntitiesTotal.WithLabelValues(entity, "updated").Add(float64(updated))
	}
	if skipped > 0 {
		EntitiesTotal.WithLabelValues(entity, "skipped").Add(float64(skipped))
	}
}

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edge_agent_reconcile_duration_seconds",
			Help:    "Duration of a full reconciliation pass in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	apiOperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_agent_api_operation_total",
			Help: "Total Kubernetes API mutations issued by the reconciler",
		},
		[]string{"verb", "kind", "status"}, // status is success or error
	)

	watchRestartTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_agent_watch_restart_total",
			Help: "Total watch stream re-establishments",
		},
		[]string{"stream"}, // pods or deployments
	)

	trackedModules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_agent_tracked_modules",
			Help: "Number of modules currently tracked by the status map",
		},
	)
)

func observeAPIOperation(verb, kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	apiOperationTotal.WithLabelValues(verb, kind, status).Inc()
}

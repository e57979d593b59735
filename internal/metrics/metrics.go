// Package metrics provides Prometheus metrics for zonesync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the prefix for all zonesync metric names.
const Namespace = "zonesync"

var (
	// ReconciliationsTotal counts reconciliation runs by outcome.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reconciliations_total",
		Help:      "Total number of reconciliation runs by status.",
	}, []string{"status"})

	// ReconcileDuration observes full reconciliation run durations.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// RecordsCreatedTotal counts created DNS records per provider.
	RecordsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "records_created_total",
		Help:      "Total number of DNS records created, by provider.",
	}, []string{"provider"})

	// RecordsUpdatedTotal counts updated DNS records per provider.
	RecordsUpdatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "records_updated_total",
		Help:      "Total number of DNS records updated, by provider.",
	}, []string{"provider"})

	// RecordsDeletedTotal counts deleted DNS records per provider.
	RecordsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "records_deleted_total",
		Help:      "Total number of DNS records deleted, by provider.",
	}, []string{"provider"})

	// RecordsFailedTotal counts failed record operations per provider and op.
	RecordsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "records_failed_total",
		Help:      "Total number of failed record operations, by provider and operation.",
	}, []string{"provider", "operation"})

	// ZonesManaged reports the number of declared zones per provider.
	ZonesManaged = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "zones_managed",
		Help:      "Number of zones under management, by provider.",
	}, []string{"provider"})

	// BuildInfo carries version metadata as labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information for the running zonesync binary.",
	}, []string{"version", "go_version"})
)

// SetBuildInfo records the build version labels.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

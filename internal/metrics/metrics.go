// Package metrics provides Prometheus metrics for the console core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Device API metrics.
	DeviceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "device",
		Name:      "requests_total",
		Help:      "Device API requests by resource path and outcome.",
	}, []string{"path", "outcome"})
	DeviceLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "device",
		Name:      "logins_total",
		Help:      "Device API logins by outcome.",
	}, []string{"outcome"})
	DeviceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hotspot",
		Subsystem: "device",
		Name:      "request_duration_seconds",
		Help:      "Device API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path"})

	// Accounting store metrics.
	StoreOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Accounting store operations by name and outcome.",
	}, []string{"op", "outcome"})
	StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hotspot",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Accounting store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// Correlation metrics.
	DegradedViewsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "correlation",
		Name:      "degraded_views_total",
		Help:      "Views served without device data, by view and error kind.",
	}, []string{"view", "kind"})

	// RADIUS metrics.
	AccountingPacketsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "radius",
		Name:      "accounting_packets_total",
		Help:      "Accounting-Request packets by status type and outcome.",
	}, []string{"status", "outcome"})
	DisconnectRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hotspot",
		Subsystem: "radius",
		Name:      "disconnect_requests_total",
		Help:      "RFC 5176 Disconnect-Requests by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		DeviceRequestsTotal,
		DeviceLoginsTotal,
		DeviceRequestDuration,
		StoreOperationsTotal,
		StoreOperationDuration,
		DegradedViewsTotal,
		AccountingPacketsTotal,
		DisconnectRequestsTotal,
	)
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

/*
Package metrics defines the control plane's Prometheus instruments: gauges for
cluster and leadership state, counters and histograms for reconciliation
passes, allocation decisions, and goal-state writes.

It does not expose an HTTP exporter: scraping and aggregation are an external
reporting pipeline's concern, not this package's. Callers that do run one wire
promhttp.Handler() against prometheus.DefaultRegisterer directly; every metric
here registers itself with that registerer on import.

Timer is a small helper for the common start-now/observe-later pattern used
throughout the reconciliation packages:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationPassDuration)
*/
package metrics

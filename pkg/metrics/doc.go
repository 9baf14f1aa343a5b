/*
Package metrics provides Prometheus metrics collection and exposition for
the control plane: instance counts by engine/status, API request
latency, health-probe and metrics-sample cycle duration, snapshot and
reconcile duration, and the /health, /ready, /live process-health
endpoints consumed by an external process supervisor.

Handler() exposes the registry for scraping; Timer wraps a start time
for the ObserveDuration(histogram) pattern used throughout the lifecycle,
health, and sampler packages.
*/
package metrics

/*
Package types defines the core data structures shared across the DBaaS
control plane.

It contains the data model described in the system spec: Instance (the
central entity — a managed database running in a container), Snapshot,
HealthSample, MetricsSample, plus the static catalog types (Sku,
EngineInfo) and the read-side response shapes (HostCapacity, Stats,
Inspect, LogEntry) returned by the Public API Surface.

# Design Patterns

Enums are typed strings, matching InstanceStatus and HealthStatus:

	type InstanceStatus string
	const (
	    InstanceStatusPending InstanceStatus = "pending"
	    InstanceStatusRunning InstanceStatus = "running"
	)

Optional metrics fields are pointers (*int64, *float64), not zero
values: a nil Connections means "the adapter did not report this field
this cycle", not "zero connections". Adapter-specific extras that don't
warrant a fixed column use the opaque Details map.

# Integration Points

  - pkg/storage persists Instance/Snapshot/HealthSample/MetricsSample.
  - pkg/lifecycle is the only writer of Instance.Status.
  - pkg/engine produces EngineInfo records for the adapter registry.
  - pkg/sku produces Sku records for the static catalog.
  - pkg/api converts these types directly to JSON responses; there is
    no protocol-buffer layer, since the Public API Surface is HTTP/JSON.
*/
package types

package runtime

import (
	"fmt"

	cgroupstats "github.com/containerd/cgroups/stats/v1"
	"github.com/containerd/typeurl/v2"

	v1types "github.com/containerd/containerd/api/types"
	"github.com/cuemby/dbaasd/pkg/types"
)

// statsFromMetric decodes the cgroup v1 metrics containerd hands back
// from task.Metrics into the Stats shape the API surface exposes.
// Memory/CPU-only hosts without cgroup v1 accounting return zeroed
// fields rather than an error — callers treat a stats call as
// best-effort.
func statsFromMetric(metric *v1types.Metric) (*types.Stats, error) {
	if metric == nil || metric.Data == nil {
		return &types.Stats{}, nil
	}

	decoded, err := typeurl.UnmarshalAny(metric.Data)
	if err != nil {
		return nil, fmt.Errorf("runtime: decode metrics: %w", err)
	}

	m, ok := decoded.(*cgroupstats.Metrics)
	if !ok {
		return &types.Stats{}, nil
	}

	stats := &types.Stats{}
	if m.CPU != nil && m.CPU.Usage != nil {
		// Usage.Total is cumulative nanoseconds; percent is computed by
		// the caller from two successive samples, not here.
		stats.CPUPercent = float64(m.CPU.Usage.Total) / 1e9
	}
	if m.Memory != nil {
		stats.MemoryUsedMB = int64(m.Memory.Usage.Usage) / (1024 * 1024)
		stats.MemoryLimitMB = int64(m.Memory.Usage.Limit) / (1024 * 1024)
		if stats.MemoryLimitMB > 0 {
			stats.MemoryPercent = float64(stats.MemoryUsedMB) / float64(stats.MemoryLimitMB) * 100
		}
	}
	return stats, nil
}

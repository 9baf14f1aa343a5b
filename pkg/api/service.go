package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/lifecycle"
	"github.com/cuemby/dbaasd/pkg/sku"
	"github.com/cuemby/dbaasd/pkg/snapshot"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// ContainerInspector is the slice of runtime.Orchestrator the API
// layer needs directly, for operations the Lifecycle Manager has no
// reason to own (a raw stats/inspect/logs/export read is not a status
// transition). Satisfied structurally by *runtime.Orchestrator.
type ContainerInspector interface {
	Stats(ctx context.Context, containerID string) (*types.Stats, error)
	Inspect(ctx context.Context, containerID string) (*types.Inspect, error)
	Logs(ctx context.Context, containerID string) (io.ReadCloser, error)
	Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error)
}

const exportTimeout = 30 * time.Minute

// Service wires the Lifecycle Manager, Snapshot Service, engine
// registry, SKU catalog and a narrow runtime slice into the public
// resource operations. It is deliberately thin: every
// write passes straight through to the collaborator that owns the
// invariant (Lifecycle Manager for status, Snapshot Service for backup
// files), never duplicating their locking or validation.
type Service struct {
	cfg       *config.Config
	store     storage.Store
	lifecycle *lifecycle.Manager
	snapshots *snapshot.Service
	registry  *engine.Registry
	skus      *sku.Catalog
	runtime   ContainerInspector
}

// New builds a Service over already-constructed collaborators; it owns
// none of their lifecycles (Start/Stop loops are started by the
// caller, same as lifecycle.Manager and health.Monitor).
func New(cfg *config.Config, store storage.Store, lifecycleMgr *lifecycle.Manager, snapshots *snapshot.Service, registry *engine.Registry, skus *sku.Catalog, runtime ContainerInspector) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		lifecycle: lifecycleMgr,
		snapshots: snapshots,
		registry:  registry,
		skus:      skus,
		runtime:   runtime,
	}
}

// Engines lists every registered engine adapter's capability summary.
func (s *Service) Engines() []types.EngineInfo {
	return s.registry.List()
}

// Skus lists the authoritative SKU catalog.
func (s *Service) Skus() []types.Sku {
	return s.skus.List()
}

// Host reports host-level resource availability, read live from the
// operating system rather than any persisted row.
func (s *Service) Host(ctx context.Context) (*types.HostCapacity, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: read host memory: %w", err)
	}
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("api: read host cpu count: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, s.cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("api: read host disk usage: %w", err)
	}
	instances, err := s.store.ListInstances(ctx, storage.InstanceFilter{})
	if err != nil {
		return nil, fmt.Errorf("api: count instances: %w", err)
	}
	active := 0
	for _, inst := range instances {
		if inst.Status != types.InstanceStatusDestroyed {
			active++
		}
	}
	const mb = 1024 * 1024
	const gb = 1024 * 1024 * 1024
	return &types.HostCapacity{
		TotalMemoryMB:      int64(vm.Total) / mb,
		AvailableMemoryMB:  int64(vm.Available) / mb,
		TotalCPUCores:      counts,
		TotalStorageGB:     int64(du.Total) / gb,
		AvailableStorageGB: int64(du.Free) / gb,
		InstanceCount:      active,
	}, nil
}

// ListInstances returns every non-deleted instance matching filter.
func (s *Service) ListInstances(ctx context.Context, filter storage.InstanceFilter) ([]*types.Instance, error) {
	return s.store.ListInstances(ctx, filter)
}

// GetInstance fetches one instance by id.
func (s *Service) GetInstance(ctx context.Context, id int64) (*types.Instance, error) {
	return s.store.GetInstance(ctx, id)
}

// CreateInstance provisions a new instance per spec.
func (s *Service) CreateInstance(ctx context.Context, spec *types.CreateSpec) (*types.Instance, error) {
	return s.lifecycle.Create(ctx, spec)
}

// StartInstance, StopInstance and RestartInstance drive the
// corresponding lifecycle transition and return the refreshed row.
func (s *Service) StartInstance(ctx context.Context, id int64) (*types.Instance, error) {
	if err := s.lifecycle.Start(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetInstance(ctx, id)
}

func (s *Service) StopInstance(ctx context.Context, id int64) (*types.Instance, error) {
	if err := s.lifecycle.Stop(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetInstance(ctx, id)
}

func (s *Service) RestartInstance(ctx context.Context, id int64) (*types.Instance, error) {
	if err := s.lifecycle.Restart(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetInstance(ctx, id)
}

// DestroyInstance tears the instance down permanently.
func (s *Service) DestroyInstance(ctx context.Context, id int64) error {
	return s.lifecycle.Destroy(ctx, id)
}

// RotateCredentials generates and applies a new password for the
// instance's primary user.
func (s *Service) RotateCredentials(ctx context.Context, id int64) (*types.Instance, error) {
	return s.lifecycle.RotateCredentials(ctx, id)
}

// Stats returns a live container resource usage snapshot.
func (s *Service) Stats(ctx context.Context, id int64) (*types.Stats, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.runtime.Stats(ctx, inst.ContainerID)
}

// Inspect returns the low-level runtime view of the instance's
// container.
func (s *Service) Inspect(ctx context.Context, id int64) (*types.Inspect, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.runtime.Inspect(ctx, inst.ContainerID)
}

// MetricsView is the {current, history} response shape for GET
// /instances/{id}/metrics.
type MetricsView struct {
	Current *types.MetricsSample   `json:"current"`
	History []*types.MetricsSample `json:"history"`
}

// Metrics returns the most recent sample plus the retained history.
func (s *Service) Metrics(ctx context.Context, id int64) (*MetricsView, error) {
	samples, err := s.store.ListMetricsSamples(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	view := &MetricsView{History: samples}
	if len(samples) > 0 {
		view.Current = samples[len(samples)-1]
	}
	return view, nil
}

// Health returns the most recent health probe observation, or a
// synthesized "unknown" sample if the Health Monitor has not probed
// this instance yet.
func (s *Service) Health(ctx context.Context, id int64) (*types.HealthSample, error) {
	samples, err := s.store.ListHealthSamples(ctx, id, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return &types.HealthSample{InstanceID: id, Status: types.HealthStatusUnknown, CheckedAt: time.Now()}, nil
	}
	return samples[0], nil
}

// CreateSnapshot, ListSnapshots, RestoreSnapshot and DeleteSnapshot
// pass straight through to the Snapshot Service.
func (s *Service) CreateSnapshot(ctx context.Context, instanceID int64, notes string) (*types.Snapshot, error) {
	return s.snapshots.Create(ctx, instanceID, notes)
}

func (s *Service) ListSnapshots(ctx context.Context, instanceID int64) ([]*types.Snapshot, error) {
	return s.snapshots.List(ctx, instanceID)
}

func (s *Service) RestoreSnapshot(ctx context.Context, instanceID, snapshotID int64) error {
	return s.snapshots.Restore(ctx, instanceID, snapshotID)
}

func (s *Service) DeleteSnapshot(ctx context.Context, instanceID, snapshotID int64) error {
	return s.snapshots.Delete(ctx, instanceID, snapshotID)
}

// LogsQuery narrows GET /instances/{id}/logs.
type LogsQuery struct {
	Tail  int
	Since time.Time
	Until time.Time
	Level string
}

// Logs reads the container's captured combined stdout/stderr, splits
// it into lines and applies the tail/since/until/level filters on a
// best-effort basis: entries whose leading token does not parse as an
// RFC3339 timestamp keep a zero Timestamp rather than being dropped,
// since not every engine's official image timestamps its own output.
func (s *Service) Logs(ctx context.Context, id int64, q LogsQuery) ([]types.LogEntry, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.runtime.Logs(ctx, inst.ContainerID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("api: read container logs: %w", err)
	}

	entries := parseLogLines(raw)
	entries = filterLogs(entries, q)
	if q.Tail > 0 && len(entries) > q.Tail {
		entries = entries[len(entries)-q.Tail:]
	}
	return entries, nil
}

// Export streams an engine-native dump of the instance's current data
// without persisting a Snapshot row: it invokes the adapter's own
// SnapshotCommand against a scratch path under the instance's volume
// and returns the resulting file for the caller to stream and delete.
func (s *Service) Export(ctx context.Context, id int64) (io.ReadCloser, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != types.InstanceStatusRunning {
		return nil, fmt.Errorf("%w: instance %d is %s", lifecycle.ErrNotRunning, id, inst.Status)
	}
	adapter, err := s.registry.Lookup(inst.Engine)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	destPath := fmt.Sprintf("%s/.export-%d.%s", inst.VolumePath, time.Now().UnixNano(), adapter.SnapshotExt())
	cmd := adapter.SnapshotCommand(inst, destPath)
	out, exitCode, err := s.runtime.Exec(ctx, inst.ContainerID, cmd, exportTimeout)
	if err != nil || exitCode != 0 {
		return nil, fmt.Errorf("api: export: exit %d: %v: %s", exitCode, err, out)
	}
	return newExportFile(destPath)
}

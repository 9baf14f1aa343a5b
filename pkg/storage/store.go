package storage

import (
	"context"

	"github.com/cuemby/dbaasd/pkg/types"
)

// InstanceFilter narrows ListInstances by engine and/or status; zero
// values mean "no constraint on this field".
type InstanceFilter struct {
	Engine string
	Status types.InstanceStatus
}

// Store is the durable table store for instances, snapshots, health
// samples and metrics samples. Implemented by SQLiteStore.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, instance *types.Instance) error
	GetInstance(ctx context.Context, id int64) (*types.Instance, error)
	GetInstanceByName(ctx context.Context, name string) (*types.Instance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*types.Instance, error)
	UpdateInstance(ctx context.Context, instance *types.Instance) error
	DeleteInstance(ctx context.Context, id int64) error
	PortInUse(ctx context.Context, host string, port int) (bool, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, snap *types.Snapshot) error
	GetSnapshot(ctx context.Context, instanceID, id int64) (*types.Snapshot, error)
	ListSnapshots(ctx context.Context, instanceID int64) ([]*types.Snapshot, error)
	DeleteSnapshot(ctx context.Context, instanceID, id int64) error

	// Health samples
	CreateHealthSample(ctx context.Context, sample *types.HealthSample) error
	ListHealthSamples(ctx context.Context, instanceID int64, limit int) ([]*types.HealthSample, error)
	TrimHealthSamples(ctx context.Context, instanceID int64, keep int) (int64, error)

	// Metrics samples
	CreateMetricsSample(ctx context.Context, sample *types.MetricsSample) error
	ListMetricsSamples(ctx context.Context, instanceID int64, since int64) ([]*types.MetricsSample, error)
	DeleteMetricsSamplesBefore(ctx context.Context, cutoff int64) (int64, error)

	Close() error
}

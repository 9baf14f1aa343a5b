package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dbaasd/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "instances.db")
	_, err := Migrate(dbPath)
	require.NoError(t, err)

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testInstance(name string) *types.Instance {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Instance{
		Name:         name,
		Engine:       "postgresql",
		SkuID:        "d2",
		DatabaseName: "app",
		Username:     "app",
		Password:     "secret",
		HostAddress:  "127.0.0.1",
		Port:         15432,
		Status:       types.InstanceStatusPending,
		CreatedAt:    now,
	}
}

func TestCreateAndGetInstance(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app1")
	require.NoError(t, store.CreateInstance(ctx, inst))
	assert.NotZero(t, inst.ID)

	got, err := store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.Name, got.Name)
	assert.Equal(t, inst.Engine, got.Engine)
}

func TestGetInstanceNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetInstance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInstanceNameUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateInstance(ctx, testInstance("dup")))
	err := store.CreateInstance(ctx, testInstance("dup"))
	assert.Error(t, err)
}

func TestListInstancesFiltersByEngineAndStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	pg := testInstance("pg1")
	require.NoError(t, store.CreateInstance(ctx, pg))

	redis := testInstance("redis1")
	redis.Engine = "redis"
	require.NoError(t, store.CreateInstance(ctx, redis))

	results, err := store.ListInstances(ctx, InstanceFilter{Engine: "postgresql"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pg1", results[0].Name)
}

func TestUpdateInstanceStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app2")
	require.NoError(t, store.CreateInstance(ctx, inst))

	inst.Status = types.InstanceStatusRunning
	inst.ContainerID = "abc123"
	require.NoError(t, store.UpdateInstance(ctx, inst))

	got, err := store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusRunning, got.Status)
	assert.Equal(t, "abc123", got.ContainerID)
}

func TestPortInUseIgnoresDestroyedInstances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app3")
	require.NoError(t, store.CreateInstance(ctx, inst))

	inUse, err := store.PortInUse(ctx, "127.0.0.1", 15432)
	require.NoError(t, err)
	assert.True(t, inUse)

	inst.Status = types.InstanceStatusDestroyed
	require.NoError(t, store.UpdateInstance(ctx, inst))

	inUse, err = store.PortInUse(ctx, "127.0.0.1", 15432)
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app4")
	require.NoError(t, store.CreateInstance(ctx, inst))

	snap := &types.Snapshot{InstanceID: inst.ID, Path: "/snap/1", SizeBytes: 1024, CreatedAt: time.Now()}
	require.NoError(t, store.CreateSnapshot(ctx, snap))

	list, err := store.ListSnapshots(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.DeleteSnapshot(ctx, inst.ID, snap.ID))
	list, err = store.ListSnapshots(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSnapshotCascadeOnInstanceDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app5")
	require.NoError(t, store.CreateInstance(ctx, inst))

	snap := &types.Snapshot{InstanceID: inst.ID, Path: "/snap/2", SizeBytes: 512, CreatedAt: time.Now()}
	require.NoError(t, store.CreateSnapshot(ctx, snap))

	require.NoError(t, store.DeleteInstance(ctx, inst.ID))

	list, err := store.ListSnapshots(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "snapshots should cascade-delete with their instance")
}

func TestHealthSampleTrimKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app6")
	require.NoError(t, store.CreateInstance(ctx, inst))

	for i := 0; i < 10; i++ {
		sample := &types.HealthSample{
			InstanceID: inst.ID,
			Status:     types.HealthStatusHealthy,
			CheckedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreateHealthSample(ctx, sample))
	}

	removed, err := store.TrimHealthSamples(ctx, inst.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)

	remaining, err := store.ListHealthSamples(ctx, inst.ID, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestMetricsSampleRetentionSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inst := testInstance("app7")
	require.NoError(t, store.CreateInstance(ctx, inst))

	old := &types.MetricsSample{InstanceID: inst.ID, CollectedAt: time.Now().Add(-60 * 24 * time.Hour)}
	require.NoError(t, store.CreateMetricsSample(ctx, old))

	fresh := &types.MetricsSample{InstanceID: inst.ID, CollectedAt: time.Now()}
	require.NoError(t, store.CreateMetricsSample(ctx, fresh))

	cutoff := time.Now().Add(-30 * 24 * time.Hour).Unix()
	removed, err := store.DeleteMetricsSamplesBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

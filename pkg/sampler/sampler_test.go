package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

type fakeStatsExecer struct {
	stats   *types.Stats
	statsErr error
	outputs map[string]string
}

func (f *fakeStatsExecer) Stats(ctx context.Context, containerID string) (*types.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeStatsExecer) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	out, ok := f.outputs[queryNameFor(cmd)]
	if !ok {
		return nil, 1, nil
	}
	return []byte(out), 0, nil
}

// queryNameFor recovers which named query a command belongs to for the
// fake's canned-output lookup; production adapters don't need this,
// but the fake has no other way to tell two psql invocations apart.
func queryNameFor(cmd engine.Command) string {
	for _, arg := range cmd.Args {
		switch arg {
		case "SELECT count(*) FROM pg_stat_activity;":
			return "connections"
		}
	}
	return ""
}

func newTestSampler(t *testing.T, rt StatsExecer) (*Sampler, storage.Store, *types.Instance) {
	t.Helper()
	dbPath := t.TempDir() + "/instances.db"
	_, err := storage.Migrate(dbPath)
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := engine.NewRegistry()
	engine.RegisterDefaults(registry)

	cfg := config.Default()

	inst := &types.Instance{
		Name: "sampletest", Engine: "postgresql", SkuID: "D2", DatabaseName: "app",
		ContainerID: "c1", Status: types.InstanceStatusRunning,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateInstance(context.Background(), inst))

	return New(cfg, store, registry, rt), store, inst
}

func TestSampleOneWritesContainerStats(t *testing.T) {
	rt := &fakeStatsExecer{stats: &types.Stats{CPUPercent: 12.5, MemoryUsedMB: 256, MemoryLimitMB: 1024}}
	s, store, inst := newTestSampler(t, rt)

	s.sampleOne(context.Background(), inst)

	rows, err := store.ListMetricsSamples(context.Background(), inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 12.5, rows[0].CPUPercent, 0.001)
	assert.InDelta(t, 25.0, rows[0].MemoryPercent, 0.001)
}

func TestSampleOneLeavesMissingEngineFieldsNil(t *testing.T) {
	rt := &fakeStatsExecer{stats: &types.Stats{MemoryLimitMB: 1024}, outputs: map[string]string{}}
	s, store, inst := newTestSampler(t, rt)

	s.sampleOne(context.Background(), inst)

	rows, err := store.ListMetricsSamples(context.Background(), inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Connections)
	assert.Nil(t, rows[0].CacheHitRatio)
}

func TestSampleOneFillsKnownEngineField(t *testing.T) {
	rt := &fakeStatsExecer{
		stats:   &types.Stats{MemoryLimitMB: 1024},
		outputs: map[string]string{"connections": "7"},
	}
	s, store, inst := newTestSampler(t, rt)

	s.sampleOne(context.Background(), inst)

	rows, err := store.ListMetricsSamples(context.Background(), inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Connections)
	assert.EqualValues(t, 7, *rows[0].Connections)
}

func TestSweepRetentionDeletesOldSamples(t *testing.T) {
	rt := &fakeStatsExecer{stats: &types.Stats{}}
	s, store, inst := newTestSampler(t, rt)

	old := &types.MetricsSample{InstanceID: inst.ID, CollectedAt: time.Now().AddDate(0, 0, -40)}
	require.NoError(t, store.CreateMetricsSample(context.Background(), old))
	fresh := &types.MetricsSample{InstanceID: inst.ID, CollectedAt: time.Now()}
	require.NoError(t, store.CreateMetricsSample(context.Background(), fresh))

	s.sweepRetention(context.Background())

	rows, err := store.ListMetricsSamples(context.Background(), inst.ID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

package health

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

type fakeProber struct {
	status   types.InstanceStatus
	statusErr error
	exitCode int
	execErr  error
}

func (f *fakeProber) Status(ctx context.Context, containerID string) (types.InstanceStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeProber) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	return nil, f.exitCode, f.execErr
}

type fakeRestarter struct {
	calls []int64
}

func (f *fakeRestarter) Restart(ctx context.Context, id int64) error {
	f.calls = append(f.calls, id)
	return nil
}

func newTestMonitor(t *testing.T, prober *fakeProber, restarter Restarter) (*Monitor, storage.Store, *types.Instance) {
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
	cfg.RestartThreshold = 3
	cfg.AutoRestart = true

	inst := &types.Instance{
		Name: "probetest", Engine: "postgresql", SkuID: "D2", DatabaseName: "app",
		ContainerID: "c1", Status: types.InstanceStatusRunning,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateInstance(context.Background(), inst))

	mon := New(cfg, store, registry, prober, restarter)
	return mon, store, inst
}

func TestProbeClassifiesHealthyOnExitZero(t *testing.T) {
	prober := &fakeProber{status: types.InstanceStatusRunning, exitCode: 0}
	mon, _, inst := newTestMonitor(t, prober, nil)

	status := mon.probe(context.Background(), inst)
	assert.Equal(t, types.HealthStatusHealthy, status)
}

func TestProbeClassifiesDegradedOnNonZeroExit(t *testing.T) {
	prober := &fakeProber{status: types.InstanceStatusRunning, exitCode: 1}
	mon, _, inst := newTestMonitor(t, prober, nil)

	status := mon.probe(context.Background(), inst)
	assert.Equal(t, types.HealthStatusDegraded, status)
}

func TestProbeClassifiesUnhealthyWhenContainerNotRunning(t *testing.T) {
	prober := &fakeProber{status: types.InstanceStatusStopped}
	mon, _, inst := newTestMonitor(t, prober, nil)

	status := mon.probe(context.Background(), inst)
	assert.Equal(t, types.HealthStatusUnhealthy, status)
}

func TestProbeOneWritesHealthSample(t *testing.T) {
	prober := &fakeProber{status: types.InstanceStatusRunning, exitCode: 0}
	mon, store, inst := newTestMonitor(t, prober, nil)

	mon.probeOne(context.Background(), inst)

	samples, err := store.ListHealthSamples(context.Background(), inst.ID, 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, types.HealthStatusHealthy, samples[0].Status)
}

func TestRecordTrendTriggersRestartAfterConsecutiveFailures(t *testing.T) {
	prober := &fakeProber{status: types.InstanceStatusRunning, exitCode: 0}
	restarter := &fakeRestarter{}
	mon, _, inst := newTestMonitor(t, prober, restarter)

	mon.recordTrend(context.Background(), inst, types.HealthStatusUnhealthy)
	mon.recordTrend(context.Background(), inst, types.HealthStatusUnhealthy)
	assert.Empty(t, restarter.calls)

	mon.recordTrend(context.Background(), inst, types.HealthStatusUnhealthy)
	assert.Equal(t, []int64{inst.ID}, restarter.calls)
}

func TestRecordTrendDoesNotReemitSameStableStatus(t *testing.T) {
	restarter := &fakeRestarter{}
	mon, _, inst := newTestMonitor(t, &fakeProber{}, restarter)

	for i := 0; i < 5; i++ {
		mon.recordTrend(context.Background(), inst, types.HealthStatusUnhealthy)
	}
	assert.Len(t, restarter.calls, 1)
}

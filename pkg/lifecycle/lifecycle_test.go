package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/runtime"
	"github.com/cuemby/dbaasd/pkg/sku"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// fakeRuntime is an in-memory ContainerRuntime double: every created
// container is immediately running and every health probe succeeds,
// unless a test overrides execFunc/statusFunc.
type fakeRuntime struct {
	mu        sync.Mutex
	created   map[string]runtime.ContainerSpec
	removed   map[string]bool
	execFunc  func(containerID string) (int, error)
	statusFunc func(containerID string) (types.InstanceStatus, error)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{created: map[string]runtime.ContainerSpec{}, removed: map[string]bool{}}
}

func (f *fakeRuntime) PullImage(ctx context.Context, imageRef string) error { return nil }

func (f *fakeRuntime) Create(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[spec.ID] = spec
	return spec.ID, nil
}

func (f *fakeRuntime) Start(ctx context.Context, containerID string) error { return nil }

func (f *fakeRuntime) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[containerID] = true
	return nil
}

func (f *fakeRuntime) Status(ctx context.Context, containerID string) (types.InstanceStatus, error) {
	if f.statusFunc != nil {
		return f.statusFunc(containerID)
	}
	return types.InstanceStatusRunning, nil
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	if f.execFunc != nil {
		code, err := f.execFunc(containerID)
		return nil, code, err
	}
	return nil, 0, nil
}

// fakeVolume is an in-memory VolumeProvisioner double.
type fakeVolume struct {
	mu      sync.Mutex
	created map[int64]bool
	deleted map[int64]bool
}

func newFakeVolume() *fakeVolume {
	return &fakeVolume{created: map[int64]bool{}, deleted: map[int64]bool{}}
}

func (f *fakeVolume) Create(instanceID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[instanceID] = true
	return fmt.Sprintf("/tmp/vol-%d", instanceID), nil
}

func (f *fakeVolume) Delete(instanceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[instanceID] = true
	return nil
}

func (f *fakeVolume) Path(instanceID int64) string { return fmt.Sprintf("/tmp/vol-%d", instanceID) }

// fakeVnet is an in-memory IPAllocator double: sequential addresses
// from a fixed base, no real CIDR math.
type fakeVnet struct {
	mu        sync.Mutex
	next      int
	allocated map[string]int64
}

func newFakeVnet() *fakeVnet {
	return &fakeVnet{next: 1, allocated: map[string]int64{}}
}

func (f *fakeVnet) DefineNetwork(name, cidr string) error { return nil }

func (f *fakeVnet) Allocate(name string, instanceID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip := fmt.Sprintf("10.88.0.%d", f.next)
	f.next++
	f.allocated[ip] = instanceID
	return ip, nil
}

func (f *fakeVnet) Reserve(name, ip string, instanceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated[ip] = instanceID
	return nil
}

func (f *fakeVnet) Release(name, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.allocated, ip)
	return nil
}

// fakePorts is an in-memory PortPublisher double.
type fakePorts struct {
	mu        sync.Mutex
	published map[int64]bool
}

func newFakePorts() *fakePorts { return &fakePorts{published: map[int64]bool{}} }

func (f *fakePorts) Publish(instanceID int64, hostIP string, hostPort int, containerIP string, containerPort int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[instanceID] = true
	return nil
}

func (f *fakePorts) Unpublish(instanceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.published, instanceID)
	return nil
}

type testHarness struct {
	mgr   *Manager
	store storage.Store
	rt    *fakeRuntime
	vols  *fakeVolume
	vnets *fakeVnet
	ports *fakePorts
}

func newTestHarness(t *testing.T) *testHarness {
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
	cfg.PortRangeStart = 30000
	cfg.PortRangeEnd = 30010

	rt := newFakeRuntime()
	vols := newFakeVolume()
	vnets := newFakeVnet()
	ports := newFakePorts()

	mgr, err := New(cfg, store, registry, sku.NewCatalog(), rt, vols, vnets, ports)
	require.NoError(t, err)

	return &testHarness{mgr: mgr, store: store, rt: rt, vols: vols, vnets: vnets, ports: ports}
}

func TestCreateDrivesInstanceToRunning(t *testing.T) {
	h := newTestHarness(t)

	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{
		Engine: "postgresql", DatabaseName: "app", SkuID: "D2",
	})
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusRunning, inst.Status)
	assert.NotEmpty(t, inst.Username)
	assert.NotEmpty(t, inst.Password)
	assert.NotZero(t, inst.Port)
	assert.True(t, h.vols.created[inst.ID])
	assert.True(t, h.ports.published[inst.ID])
}

func TestCreateRejectsUnknownEngine(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "not-a-real-engine", DatabaseName: "app", SkuID: "D2"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	h := newTestHarness(t)
	spec := &types.CreateSpec{Engine: "redis", Name: "cache1", DatabaseName: "app", SkuID: "B1"}
	_, err := h.mgr.Create(context.Background(), spec)
	require.NoError(t, err)

	_, err = h.mgr.Create(context.Background(), spec)
	assert.ErrorIs(t, err, ErrNameInUse)
}

func TestCreateFailsOnReadinessTimeout(t *testing.T) {
	h := newTestHarness(t)
	h.rt.execFunc = func(containerID string) (int, error) { return 1, nil }

	cfg := h.mgr.cfg
	cfg.ReadinessTimeouts["default"] = 0

	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "redis", DatabaseName: "app", SkuID: "B1"})
	require.Error(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, types.InstanceStatusFailed, inst.Status)
}

func TestStopThenRestart(t *testing.T) {
	h := newTestHarness(t)
	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "redis", DatabaseName: "app", SkuID: "B1"})
	require.NoError(t, err)

	require.NoError(t, h.mgr.Stop(context.Background(), inst.ID))
	stopped, err := h.store.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusStopped, stopped.Status)

	require.NoError(t, h.mgr.Restart(context.Background(), inst.ID))
	running, err := h.store.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusRunning, running.Status)
}

func TestStopRejectsNonRunningInstance(t *testing.T) {
	h := newTestHarness(t)
	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "redis", DatabaseName: "app", SkuID: "B1"})
	require.NoError(t, err)
	require.NoError(t, h.mgr.Stop(context.Background(), inst.ID))

	err = h.mgr.Stop(context.Background(), inst.ID)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestDestroyReleasesAllResources(t *testing.T) {
	h := newTestHarness(t)
	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "redis", DatabaseName: "app", SkuID: "B1"})
	require.NoError(t, err)

	require.NoError(t, h.mgr.Destroy(context.Background(), inst.ID))

	destroyed, err := h.store.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusDestroyed, destroyed.Status)
	assert.True(t, h.vols.deleted[inst.ID])
	assert.True(t, h.rt.removed[inst.ContainerID])
	assert.False(t, h.ports.published[inst.ID])
}

func TestDestroyIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "redis", DatabaseName: "app", SkuID: "B1"})
	require.NoError(t, err)

	require.NoError(t, h.mgr.Destroy(context.Background(), inst.ID))
	require.NoError(t, h.mgr.Destroy(context.Background(), inst.ID))
}

func TestReconcileOnceMarksAbsentContainerFailed(t *testing.T) {
	h := newTestHarness(t)

	inst := &types.Instance{
		Name: "stranded", Engine: "redis", SkuID: "B1", DatabaseName: "app",
		ContainerID: "", Status: types.InstanceStatusCreating,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, h.store.CreateInstance(context.Background(), inst))

	require.NoError(t, h.mgr.ReconcileOnce(context.Background()))

	got, err := h.store.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusFailed, got.Status)
}

func TestEmbeddedEngineSkipsContainerLifecycle(t *testing.T) {
	h := newTestHarness(t)
	inst, err := h.mgr.Create(context.Background(), &types.CreateSpec{Engine: "sqlite", DatabaseName: "app", SkuID: "B1"})
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatusRunning, inst.Status)
	assert.Empty(t, inst.ContainerID)
	assert.Empty(t, inst.VnetIP)
}

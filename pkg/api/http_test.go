package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/lifecycle"
	"github.com/cuemby/dbaasd/pkg/runtime"
	"github.com/cuemby/dbaasd/pkg/sku"
	"github.com/cuemby/dbaasd/pkg/snapshot"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// fakeRuntime doubles as lifecycle.ContainerRuntime and
// ContainerInspector: every created container is immediately running,
// Stats/Inspect return canned values, and Logs serves a fixed buffer.
type fakeRuntime struct {
	mu       sync.Mutex
	created  map[string]runtime.ContainerSpec
	execFunc func(containerID string) (int, error)
	logData  []byte
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{created: map[string]runtime.ContainerSpec{}, logData: []byte("hello from container\nsecond line\n")}
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

func (f *fakeRuntime) Remove(ctx context.Context, containerID string) error { return nil }

func (f *fakeRuntime) Status(ctx context.Context, containerID string) (types.InstanceStatus, error) {
	return types.InstanceStatusRunning, nil
}

func (f *fakeRuntime) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	if f.execFunc != nil {
		code, err := f.execFunc(containerID)
		return nil, code, err
	}
	return nil, 0, nil
}

func (f *fakeRuntime) Stats(ctx context.Context, containerID string) (*types.Stats, error) {
	return &types.Stats{CPUPercent: 1.5, MemoryUsedMB: 128, MemoryLimitMB: 512}, nil
}

func (f *fakeRuntime) Inspect(ctx context.Context, containerID string) (*types.Inspect, error) {
	return &types.Inspect{ContainerID: containerID, State: "running"}, nil
}

func (f *fakeRuntime) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.logData)), nil
}

type fakeVolume struct{ mu sync.Mutex }

func (f *fakeVolume) Create(instanceID int64) (string, error) {
	return fmt.Sprintf("/tmp/api-test-vol-%d", instanceID), nil
}
func (f *fakeVolume) Delete(instanceID int64) error { return nil }
func (f *fakeVolume) Path(instanceID int64) string  { return fmt.Sprintf("/tmp/api-test-vol-%d", instanceID) }

type fakeVnet struct {
	mu   sync.Mutex
	next int
}

func (f *fakeVnet) DefineNetwork(name, cidr string) error { return nil }
func (f *fakeVnet) Allocate(name string, instanceID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("10.88.0.%d", f.next), nil
}
func (f *fakeVnet) Reserve(name, ip string, instanceID int64) error { return nil }
func (f *fakeVnet) Release(name, ip string) error                  { return nil }

type fakePorts struct{ mu sync.Mutex }

func (f *fakePorts) Publish(instanceID int64, hostIP string, hostPort int, containerIP string, containerPort int) error {
	return nil
}
func (f *fakePorts) Unpublish(instanceID int64) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *fakeRuntime, *Service) {
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
	cfg.DataRoot = t.TempDir()
	cfg.PortRangeStart = 31000
	cfg.PortRangeEnd = 31010

	rt := newFakeRuntime()
	mgr, err := lifecycle.New(cfg, store, registry, sku.NewCatalog(), rt, &fakeVolume{}, &fakeVnet{}, &fakePorts{})
	require.NoError(t, err)

	snaps := snapshot.New(cfg, store, registry, rt)
	svc := New(cfg, store, mgr, snaps, registry, sku.NewCatalog(), rt)

	router := NewRouter(RouterConfig{Service: svc})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, rt, svc
}

func createTestInstance(t *testing.T, srv *httptest.Server) types.Instance {
	t.Helper()
	body, _ := json.Marshal(types.CreateSpec{Engine: "postgresql", DatabaseName: "app", SkuID: "D2"})
	resp, err := http.Post(srv.URL+"/dbaas/instances/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var inst types.Instance
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inst))
	return inst
}

func TestCreateAndGetInstance(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)
	assert.Equal(t, types.InstanceStatusRunning, inst.Status)

	resp, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListEnginesAndSkus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/dbaas/engines")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var engines []types.EngineInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&engines))
	assert.NotEmpty(t, engines)

	resp2, err := http.Get(srv.URL + "/dbaas/skus")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestStopStartRestartInstance(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Post(fmt.Sprintf("%s/dbaas/instances/%d/stop", srv.URL, inst.ID), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var stopped types.Instance
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stopped))
	assert.Equal(t, types.InstanceStatusStopped, stopped.Status)

	resp2, err := http.Post(fmt.Sprintf("%s/dbaas/instances/%d/start", srv.URL, inst.ID), "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestRotateCredentialsOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Post(fmt.Sprintf("%s/dbaas/instances/%d/credentials/rotate", srv.URL, inst.ID), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var creds map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&creds))
	assert.NotEqual(t, inst.Password, creds["password"])
}

func TestLogsEndpointReturnsEntries(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d/logs", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Entries []types.LogEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Entries, 2)
	assert.True(t, strings.Contains(body.Entries[0].Message, "hello"))
}

func TestStatsAndInspectEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d/stats", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d/inspect", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHealthEndpointDefaultsToUnknown(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d/health", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sample types.HealthSample
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sample))
	assert.Equal(t, types.HealthStatusUnknown, sample.Status)
}

func TestSnapshotCreateListDeleteOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	inst := createTestInstance(t, srv)

	resp, err := http.Post(fmt.Sprintf("%s/dbaas/instances/%d/snapshot", srv.URL, inst.ID), "application/json", strings.NewReader(`{"notes":"pre-migration"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap types.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))

	resp2, err := http.Get(fmt.Sprintf("%s/dbaas/instances/%d/snapshots", srv.URL, inst.ID))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/dbaas/instances/%d/snapshots/%d", srv.URL, inst.ID, snap.ID), nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestPermissionCheckDenies(t *testing.T) {
	dbPath := t.TempDir() + "/instances.db"
	_, err := storage.Migrate(dbPath)
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := engine.NewRegistry()
	engine.RegisterDefaults(registry)
	cfg := config.Default()
	cfg.DataRoot = t.TempDir()

	rt := newFakeRuntime()
	mgr, err := lifecycle.New(cfg, store, registry, sku.NewCatalog(), rt, &fakeVolume{}, &fakeVnet{}, &fakePorts{})
	require.NoError(t, err)
	snaps := snapshot.New(cfg, store, registry, rt)
	svc := New(cfg, store, mgr, snaps, registry, sku.NewCatalog(), rt)

	router := NewRouter(RouterConfig{
		Service: svc,
		Check:   func(permission string, subject any) bool { return false },
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/dbaas/instances/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// fakeExecer writes a fixed body to the snapshot command's declared
// destination path (argv's last element) when execFunc is nil,
// simulating an adapter snapshot command that succeeds.
type fakeExecer struct {
	exitCode int
	err      error
}

func (f *fakeExecer) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	if f.err != nil || f.exitCode != 0 {
		return nil, f.exitCode, f.err
	}
	dest := cmd.Args[len(cmd.Args)-1]
	if err := os.WriteFile(dest, []byte("dump-contents"), 0600); err != nil {
		return nil, 1, err
	}
	return nil, 0, nil
}

func newTestService(t *testing.T, rt Execer) (*Service, storage.Store, *types.Instance) {
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
	cfg.SnapshotRoot = t.TempDir()

	inst := &types.Instance{
		Name: "snaptest", Engine: "postgresql", SkuID: "D2", DatabaseName: "app",
		ContainerID: "c1", Status: types.InstanceStatusRunning,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.CreateInstance(context.Background(), inst))

	return New(cfg, store, registry, rt), store, inst
}

func TestCreateInsertsSnapshotRowWithObservedSize(t *testing.T) {
	svc, store, inst := newTestService(t, &fakeExecer{})

	snap, err := svc.Create(context.Background(), inst.ID, "pre-migration")
	require.NoError(t, err)
	assert.NotZero(t, snap.ID)
	assert.EqualValues(t, len("dump-contents"), snap.SizeBytes)

	_, err = os.Stat(snap.Path)
	require.NoError(t, err)

	rows, err := store.ListSnapshots(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCreateRejectsNonRunningInstance(t *testing.T) {
	svc, store, inst := newTestService(t, &fakeExecer{})
	inst.Status = types.InstanceStatusStopped
	require.NoError(t, store.UpdateInstance(context.Background(), inst))

	_, err := svc.Create(context.Background(), inst.ID, "")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCreateLeavesNoRowAndNoFileOnCommandFailure(t *testing.T) {
	svc, store, inst := newTestService(t, &fakeExecer{exitCode: 1})

	_, err := svc.Create(context.Background(), inst.ID, "")
	require.Error(t, err)

	rows, err := store.ListSnapshots(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRestoreFailureLeavesRowUntouched(t *testing.T) {
	svc, store, inst := newTestService(t, &fakeExecer{})
	snap, err := svc.Create(context.Background(), inst.ID, "")
	require.NoError(t, err)

	svc.runtime = &fakeExecer{exitCode: 1}
	err = svc.Restore(context.Background(), inst.ID, snap.ID)
	assert.ErrorIs(t, err, ErrRestoreFailed)

	got, err := store.GetSnapshot(context.Background(), inst.ID, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Path, got.Path)
}

func TestDeleteRemovesFileThenRow(t *testing.T) {
	svc, store, inst := newTestService(t, &fakeExecer{})
	snap, err := svc.Create(context.Background(), inst.ID, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), inst.ID, snap.ID))

	_, err = os.Stat(snap.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = store.GetSnapshot(context.Background(), inst.ID, snap.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// Package snapshot is the Snapshot Service: engine-native backups taken
// by executing the adapter's snapshot/restore commands inside a
// running container, with the resulting file tracked by a Snapshot row
// in the Persistence Store.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Sentinel errors.
var (
	ErrNotRunning    = errors.New("snapshot: instance is not running")
	ErrRestoreFailed = errors.New("snapshot: restore command failed")
)

const execTimeout = 10 * time.Minute

// Execer is the slice of runtime.Orchestrator the snapshot service
// needs; satisfied structurally so tests can fake in-container exec
// without a containerd socket.
type Execer interface {
	Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error)
}

// Service creates, restores and deletes engine-native backups.
type Service struct {
	cfg      *config.Config
	store    storage.Store
	registry *engine.Registry
	runtime  Execer
}

// New builds a Service.
func New(cfg *config.Config, store storage.Store, registry *engine.Registry, runtime Execer) *Service {
	return &Service{cfg: cfg, store: store, registry: registry, runtime: runtime}
}

// Create runs instance's adapter snapshot command against a fresh path
// under <snapshot_root>/<instance_id>/, and on success inserts the
// Snapshot row with the observed file size. Any partial file is
// removed on failure and no row is inserted.
func (s *Service) Create(ctx context.Context, instanceID int64, notes string) (*types.Snapshot, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != types.InstanceStatusRunning {
		return nil, fmt.Errorf("%w: instance %d is %s", ErrNotRunning, instanceID, inst.Status)
	}
	adapter, err := s.registry.Lookup(inst.Engine)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotCreateDuration)

	dir := filepath.Join(s.cfg.SnapshotRoot, fmt.Sprintf("%d", instanceID))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("snapshot: create snapshot dir: %w", err)
	}
	destPath := filepath.Join(dir, fmt.Sprintf("%d-%s.%s", time.Now().Unix(), uuid.NewString(), adapter.SnapshotExt()))

	cmd := adapter.SnapshotCommand(inst, destPath)
	if _, exitCode, err := s.runtime.Exec(ctx, inst.ContainerID, cmd, execTimeout); err != nil || exitCode != 0 {
		os.Remove(destPath)
		if err != nil {
			return nil, fmt.Errorf("snapshot: run snapshot command: %w", err)
		}
		return nil, fmt.Errorf("snapshot: snapshot command exited %d", exitCode)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("snapshot: stat snapshot file: %w", err)
	}

	snap := &types.Snapshot{
		InstanceID: instanceID,
		Path:       destPath,
		SizeBytes:  info.Size(),
		Notes:      notes,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("snapshot: persist snapshot row: %w", err)
	}

	log.WithSnapshotID(snap.ID).Info().Int64("instance_id", instanceID).Int64("size_bytes", snap.SizeBytes).Msg("snapshot created")
	return snap, nil
}

// Restore runs instance's adapter restore command against snapshot's
// path. The instance must be running. An interrupted restore is not
// retried: the crash-recovery reconciler handles instance states only,
// not restores in progress. A restore failure never mutates the
// Snapshot row — the instance may be left in an adapter-defined
// inconsistent state, surfaced to the caller as ErrRestoreFailed.
func (s *Service) Restore(ctx context.Context, instanceID, snapshotID int64) error {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != types.InstanceStatusRunning {
		return fmt.Errorf("%w: instance %d is %s", ErrNotRunning, instanceID, inst.Status)
	}
	snap, err := s.store.GetSnapshot(ctx, instanceID, snapshotID)
	if err != nil {
		return err
	}
	adapter, err := s.registry.Lookup(inst.Engine)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotRestoreDuration)

	logger := log.WithSnapshotID(snap.ID)
	logger.Info().Int64("instance_id", instanceID).Msg("restoring snapshot")

	cmd := adapter.RestoreCommand(inst, snap.Path)
	if _, exitCode, err := s.runtime.Exec(ctx, inst.ContainerID, cmd, execTimeout); err != nil || exitCode != 0 {
		logger.Error().Err(err).Int("exit_code", exitCode).Msg("restore command failed")
		return fmt.Errorf("%w: %v (exit %d)", ErrRestoreFailed, err, exitCode)
	}
	return nil
}

// Delete removes snapshot's file then its row, file-first: a file that
// cannot be removed fails the call and keeps the row, so no snapshot
// file is left on disk without a row listing it. A row whose file was
// removed but whose own delete then failed stays listed; nothing scans
// for such rows on start.
func (s *Service) Delete(ctx context.Context, instanceID, snapshotID int64) error {
	snap, err := s.store.GetSnapshot(ctx, instanceID, snapshotID)
	if err != nil {
		return err
	}
	if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: delete snapshot file %s: %w", snap.Path, err)
	}
	return s.store.DeleteSnapshot(ctx, instanceID, snapshotID)
}

// List returns every snapshot recorded for instanceID, newest first as
// returned by the store.
func (s *Service) List(ctx context.Context, instanceID int64) ([]*types.Snapshot, error) {
	return s.store.ListSnapshots(ctx, instanceID)
}

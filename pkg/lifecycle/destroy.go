package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Destroy tears an instance down from any non-destroyed state. Every
// step is idempotent so a destroy resumed by the crash-recovery
// reconciler can safely repeat work the prior attempt already did.
func (m *Manager) Destroy(ctx context.Context, id int64) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status == types.InstanceStatusDestroyed {
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstanceDestroyDuration)

	if inst.Status != types.InstanceStatusDestroying {
		if err := m.transition(ctx, inst, types.InstanceStatusDestroying); err != nil {
			return err
		}
	}
	return m.destroySteps(ctx, inst)
}

// destroySteps performs the §4.2.1 ordering: force-stop and remove the
// container, delete snapshots, release the vnet IP, delete the volume,
// delete staged TLS material, then transition to destroyed.
func (m *Manager) destroySteps(ctx context.Context, inst *types.Instance) error {
	logger := log.WithInstanceID(inst.ID)

	if inst.ContainerID != "" {
		if err := m.runtime.Stop(ctx, inst.ContainerID, defaultStopGrace); err != nil {
			logger.Warn().Err(err).Msg("force-stop during destroy failed, continuing")
		}
		if err := m.runtime.Remove(ctx, inst.ContainerID); err != nil {
			return fmt.Errorf("lifecycle: remove container during destroy: %w", err)
		}
	}
	if err := m.ports.Unpublish(inst.ID); err != nil {
		logger.Warn().Err(err).Msg("unpublish port during destroy failed, continuing")
	}

	snaps, err := m.store.ListSnapshots(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("lifecycle: list snapshots during destroy: %w", err)
	}
	for _, snap := range snaps {
		if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Int64("snapshot_id", snap.ID).Msg("delete snapshot file failed, continuing")
		}
		if err := m.store.DeleteSnapshot(ctx, inst.ID, snap.ID); err != nil {
			return fmt.Errorf("lifecycle: delete snapshot row %d: %w", snap.ID, err)
		}
	}

	if inst.VnetIP != "" {
		if err := m.vnets.Release(inst.VnetName, inst.VnetIP); err != nil {
			logger.Warn().Err(err).Msg("release vnet ip during destroy failed, continuing")
		}
	}

	if err := m.volumes.Delete(inst.ID); err != nil {
		return fmt.Errorf("lifecycle: delete volume during destroy: %w", err)
	}

	for _, p := range []string{inst.TLSCertPath, inst.TLSKeyPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", p).Msg("delete staged tls material failed, continuing")
		}
	}

	inst.ContainerID = ""
	inst.Status = types.InstanceStatusDestroyed
	inst.UpdatedAt = time.Now()
	return m.store.UpdateInstance(ctx, inst)
}

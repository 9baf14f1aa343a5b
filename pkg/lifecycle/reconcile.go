package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// reconcileTickInterval is the background reconcile period; a
// crash-recovery pass is cheap (one store scan plus a runtime status
// call per in-flight instance) so running it beyond process start too
// is a low-cost safety net against state the first pass raced with.
const reconcileTickInterval = 10 * time.Second

// transientStates are the non-terminal, non-running states a crash can
// strand an instance in.
var transientStates = []types.InstanceStatus{
	types.InstanceStatusCreating,
	types.InstanceStatusStarting,
	types.InstanceStatusStopping,
	types.InstanceStatusRestarting,
	types.InstanceStatusDestroying,
}

// StartReconciler launches the periodic reconcile loop in the
// background. Call ReconcileOnce synchronously before this during
// daemon startup so in-flight work is resolved before the API starts
// serving requests.
func (m *Manager) StartReconciler() {
	go m.reconcileLoop()
}

// StopReconciler stops the periodic reconcile loop.
func (m *Manager) StopReconciler() {
	close(m.stopCh)
}

func (m *Manager) reconcileLoop() {
	logger := log.WithComponent("lifecycle")
	ticker := time.NewTicker(reconcileTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.ReconcileOnce(context.Background()); err != nil {
				logger.Error().Err(err).Msg("reconcile pass failed")
			}
		case <-m.stopCh:
			return
		}
	}
}

// ReconcileOnce scans persisted instances in a transient state and
// reconciles each against the runtime, recovering from a crash
// mid-transition. First replays in-memory vnet IP allocations the
// process restart lost, since the Allocator holds no durable state of
// its own.
func (m *Manager) ReconcileOnce(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	logger := log.WithComponent("lifecycle")

	if err := m.replayVnetAllocations(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to replay vnet allocations")
	}

	for _, status := range transientStates {
		instances, err := m.store.ListInstances(ctx, storage.InstanceFilter{Status: status})
		if err != nil {
			return err
		}
		for _, inst := range instances {
			if err := m.reconcileInstance(ctx, inst); err != nil {
				logger.Error().Err(err).Int64("instance_id", inst.ID).Msg("reconcile instance failed")
			}
		}
	}
	return nil
}

// replayVnetAllocations reserves every non-destroyed instance's vnet
// IP in the (freshly empty, in-process) Allocator so new Allocate
// calls cannot collide with an address a running container already
// holds.
func (m *Manager) replayVnetAllocations(ctx context.Context) error {
	instances, err := m.store.ListInstances(ctx, storage.InstanceFilter{})
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if inst.Status == types.InstanceStatusDestroyed || inst.VnetIP == "" {
			continue
		}
		if err := m.vnets.Reserve(inst.VnetName, inst.VnetIP, inst.ID); err != nil {
			log.WithInstanceID(inst.ID).Warn().Err(err).Msg("failed to replay vnet reservation")
		}
	}
	return nil
}

func (m *Manager) reconcileInstance(ctx context.Context, inst *types.Instance) error {
	lock := m.lockFor(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: another goroutine may have already
	// finished transitioning this instance since the scan above.
	fresh, err := m.store.GetInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	inst = fresh

	if inst.Status == types.InstanceStatusDestroying {
		return m.destroySteps(ctx, inst)
	}

	if inst.ContainerID == "" {
		return m.fail(ctx, inst, errContainerAbsent)
	}

	status, err := m.runtime.Status(ctx, inst.ContainerID)
	if err != nil {
		return m.fail(ctx, inst, err)
	}

	switch status {
	case types.InstanceStatusRunning:
		return m.transition(ctx, inst, types.InstanceStatusRunning)
	case types.InstanceStatusStopped:
		return m.transition(ctx, inst, types.InstanceStatusStopped)
	default:
		return m.fail(ctx, inst, errContainerAbsent)
	}
}

var errContainerAbsent = errors.New("lifecycle: container absent or not running after restart")

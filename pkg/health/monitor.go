package health

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Prober is the slice of the container runtime the monitor needs:
// status to detect a dead container, exec to run the adapter's
// health probe inside a live one.
type Prober interface {
	Status(ctx context.Context, containerID string) (types.InstanceStatus, error)
	Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error)
}

// Restarter is the narrow slice of the Lifecycle Manager the monitor
// calls into when an instance's auto-restart policy fires.
type Restarter interface {
	Restart(ctx context.Context, id int64) error
}

// Monitor is the Health Monitor: periodically probes every running
// instance, writes a HealthSample per probe, and tracks a K-consecutive
// healthy/unhealthy trend per instance to decide when to trigger an
// automatic restart.
type Monitor struct {
	cfg       *config.Config
	store     storage.Store
	registry  *engine.Registry
	runtime   Prober
	restarter Restarter

	mu       sync.Mutex
	statuses map[int64]*Status

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Monitor.
func New(cfg *config.Config, store storage.Store, registry *engine.Registry, runtime Prober, restarter Restarter) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		runtime:   runtime,
		restarter: restarter,
		statuses:  make(map[int64]*Status),
		stopCh:    make(chan struct{}),
	}
}

func (m *Monitor) trendConfig() Config {
	retries := m.cfg.RestartThreshold
	if retries <= 0 {
		retries = 3
	}
	return Config{Interval: m.cfg.HealthInterval(), Retries: retries}
}

const retentionSweepInterval = time.Hour

// Start launches the periodic probe loop and the hourly retention
// sweep in the background.
func (m *Monitor) Start() {
	m.wg.Add(2)
	go m.run()
	go m.retentionLoop()
}

// Stop stops both background loops and waits for them to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	logger := log.WithComponent("health")
	ticker := time.NewTicker(m.cfg.HealthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(context.Background())
		case <-m.stopCh:
			logger.Info().Msg("health monitor stopped")
			return
		}
	}
}

func (m *Monitor) retentionLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepRetention(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// sweepRetention trims each instance's HealthSample rows to the last
// HealthRetention, mirroring the Metrics Sampler's retention sweep but
// per-instance since TrimHealthSamples keeps the newest N rows rather
// than a time window.
func (m *Monitor) sweepRetention(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RetentionSweepDuration)

	logger := log.WithComponent("health")
	instances, err := m.store.ListInstances(ctx, storage.InstanceFilter{})
	if err != nil {
		logger.Error().Err(err).Msg("list instances for retention sweep failed")
		return
	}

	var total int64
	for _, inst := range instances {
		deleted, err := m.store.TrimHealthSamples(ctx, inst.ID, m.cfg.HealthRetention)
		if err != nil {
			logger.Error().Err(err).Int64("instance_id", inst.ID).Msg("trim health samples failed")
			continue
		}
		total += deleted
	}
	metrics.RetentionRowsDeletedTotal.WithLabelValues("health_samples").Add(float64(total))
}

// tick probes every running instance once, bounded to ProbePoolSize
// concurrent probes; instances beyond the pool wait for the next tick
// rather than queueing within this one.
func (m *Monitor) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HealthCycleDuration)

	logger := log.WithComponent("health")
	instances, err := m.store.ListInstances(ctx, storage.InstanceFilter{Status: types.InstanceStatusRunning})
	if err != nil {
		logger.Error().Err(err).Msg("list running instances failed")
		return
	}

	sem := make(chan struct{}, m.cfg.ProbePoolSize)
	var wg sync.WaitGroup
	jitterWindow := m.cfg.HealthInterval() / 10

	for _, inst := range instances {
		select {
		case sem <- struct{}{}:
		default:
			continue
		}
		wg.Add(1)
		go func(inst *types.Instance) {
			defer wg.Done()
			defer func() { <-sem }()
			if jitterWindow > 0 {
				time.Sleep(time.Duration(rand.Int63n(int64(jitterWindow))))
			}
			m.probeOne(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

// probeOne runs a single health probe for inst and records the result.
func (m *Monitor) probeOne(ctx context.Context, inst *types.Instance) {
	timer := metrics.NewTimer()
	status := m.probe(ctx, inst)
	timer.ObserveDuration(metrics.HealthProbeDuration)
	metrics.HealthProbesTotal.WithLabelValues(string(status)).Inc()

	sample := &types.HealthSample{
		InstanceID: inst.ID,
		Status:     status,
		CheckedAt:  time.Now(),
	}
	if err := m.store.CreateHealthSample(ctx, sample); err != nil {
		log.WithInstanceID(inst.ID).Error().Err(err).Msg("persist health sample failed")
	}

	m.recordTrend(ctx, inst, status)
}

// probe runs the classification algorithm against the running
// container: adapter health probe success is healthy, a non-zero exit
// on a live container is degraded, a dead container is unhealthy, and
// a runtime error or timeout is unknown.
func (m *Monitor) probe(ctx context.Context, inst *types.Instance) types.HealthStatus {
	runtimeStatus, err := m.runtime.Status(ctx, inst.ContainerID)
	if err != nil {
		return types.HealthStatusUnknown
	}
	if runtimeStatus != types.InstanceStatusRunning {
		return types.HealthStatusUnhealthy
	}

	adapter, err := m.registry.Lookup(inst.Engine)
	if err != nil {
		return types.HealthStatusUnknown
	}

	probeTimeout := m.cfg.HealthInterval() / 2
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, exitCode, err := m.runtime.Exec(probeCtx, inst.ContainerID, adapter.HealthProbeCommand(inst), probeTimeout)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.HealthStatusUnknown
	case err != nil:
		return types.HealthStatusUnknown
	case exitCode == 0:
		return types.HealthStatusHealthy
	default:
		return types.HealthStatusDegraded
	}
}

// recordTrend folds status into inst's Status and, on a stable
// healthy<->unhealthy transition, triggers an automatic restart if the
// daemon's auto-restart policy is enabled.
func (m *Monitor) recordTrend(ctx context.Context, inst *types.Instance, status types.HealthStatus) {
	m.mu.Lock()
	st, ok := m.statuses[inst.ID]
	if !ok {
		st = NewStatus()
		m.statuses[inst.ID] = st
	}
	transitioned := st.Update(status, time.Now(), m.trendConfig())
	newStable := st.Stable
	m.mu.Unlock()

	if !transitioned {
		return
	}

	logger := log.WithInstanceID(inst.ID)
	logger.Warn().Str("status", string(newStable)).Msg("health status transition")

	if newStable == types.HealthStatusUnhealthy && m.cfg.AutoRestart && m.restarter != nil {
		logger.Warn().Msg("auto-restart policy triggered")
		if err := m.restarter.Restart(ctx, inst.ID); err != nil {
			logger.Error().Err(err).Msg("auto-restart failed")
		}
	}
}

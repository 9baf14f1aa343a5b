// Package sampler is the Metrics Sampler: it periodically fuses
// container-runtime resource stats with each engine adapter's
// in-engine metrics queries into a single MetricsSample per running
// instance, and sweeps samples older than the configured retention
// window.
package sampler

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

const retentionSweepInterval = time.Hour

// StatsExecer is the slice of the container runtime the sampler needs:
// resource stats plus exec for the adapter's in-engine metrics queries.
type StatsExecer interface {
	Stats(ctx context.Context, containerID string) (*types.Stats, error)
	Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error)
}

// Sampler periodically writes a MetricsSample per running instance and
// retires samples past the configured retention window.
type Sampler struct {
	cfg      *config.Config
	store    storage.Store
	registry *engine.Registry
	runtime  StatsExecer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Sampler.
func New(cfg *config.Config, store storage.Store, registry *engine.Registry, runtime StatsExecer) *Sampler {
	return &Sampler{cfg: cfg, store: store, registry: registry, runtime: runtime, stopCh: make(chan struct{})}
}

// Start launches the sample loop and the hourly retention sweep in the
// background.
func (s *Sampler) Start() {
	s.wg.Add(2)
	go s.sampleLoop()
	go s.retentionLoop()
}

// Stop stops both background loops and waits for them to exit.
func (s *Sampler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sampler) sampleLoop() {
	defer s.wg.Done()
	logger := log.WithComponent("sampler")
	ticker := time.NewTicker(s.cfg.MetricsInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(context.Background())
		case <-s.stopCh:
			logger.Info().Msg("metrics sampler stopped")
			return
		}
	}
}

func (s *Sampler) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepRetention(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// tick samples every running instance, bounded to ProbePoolSize
// concurrent samples and jittered within a tenth of the tick interval
// to de-synchronize.
func (s *Sampler) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SampleCycleDuration)

	logger := log.WithComponent("sampler")
	instances, err := s.store.ListInstances(ctx, storage.InstanceFilter{Status: types.InstanceStatusRunning})
	if err != nil {
		logger.Error().Err(err).Msg("list running instances failed")
		return
	}

	sem := make(chan struct{}, s.cfg.ProbePoolSize)
	var wg sync.WaitGroup
	jitterWindow := s.cfg.MetricsInterval() / 10

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
			s.sampleOne(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

// sampleOne fuses container stats with the adapter's in-engine metrics
// queries into one MetricsSample and persists it. Missing engine
// fields stay nil rather than zero, so the API can distinguish "no
// data yet" from a genuine zero reading.
func (s *Sampler) sampleOne(ctx context.Context, inst *types.Instance) {
	logger := log.WithInstanceID(inst.ID)

	stats, err := s.runtime.Stats(ctx, inst.ContainerID)
	if err != nil {
		logger.Warn().Err(err).Msg("collect container stats failed")
		return
	}

	sample := &types.MetricsSample{
		InstanceID:    inst.ID,
		CPUPercent:    stats.CPUPercent,
		MemoryUsedMB:  stats.MemoryUsedMB,
		MemoryLimitMB: stats.MemoryLimitMB,
		CollectedAt:   time.Now(),
	}
	if stats.MemoryLimitMB > 0 {
		sample.MemoryPercent = float64(stats.MemoryUsedMB) / float64(stats.MemoryLimitMB) * 100
	}

	adapter, err := s.registry.Lookup(inst.Engine)
	if err != nil {
		logger.Warn().Err(err).Msg("lookup adapter for metrics collection failed")
	} else {
		s.collectEngineFields(ctx, inst, adapter, sample)
	}

	if err := s.store.CreateMetricsSample(ctx, sample); err != nil {
		logger.Error().Err(err).Msg("persist metrics sample failed")
		return
	}
	metrics.SamplesWrittenTotal.Inc()
}

// collectEngineFields runs each of the adapter's metrics queries and
// fills the matching MetricsSample field by query name. A failing
// query leaves its field nil rather than failing the whole sample.
func (s *Sampler) collectEngineFields(ctx context.Context, inst *types.Instance, adapter engine.Adapter, sample *types.MetricsSample) {
	for _, q := range adapter.CollectMetricsQueries(inst) {
		out, exitCode, err := s.runtime.Exec(ctx, inst.ContainerID, q.Command, 5*time.Second)
		if err != nil || exitCode != 0 {
			continue
		}
		text := strings.TrimSpace(string(out))

		switch q.Name {
		case "connections":
			if v, err := strconv.ParseInt(text, 10, 64); err == nil {
				sample.Connections = &v
			}
		case "active_queries":
			if v, err := strconv.ParseInt(text, 10, 64); err == nil {
				sample.ActiveQueries = &v
			}
		case "cache_hit_ratio":
			if v, err := strconv.ParseFloat(text, 64); err == nil {
				sample.CacheHitRatio = &v
			}
		case "uptime_seconds":
			if v, err := strconv.ParseInt(text, 10, 64); err == nil {
				sample.UptimeSeconds = &v
			}
		}
	}
}

// sweepRetention deletes samples older than the single daemon-wide
// MetricsRetentionD window, across all instances in one pass.
func (s *Sampler) sweepRetention(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RetentionSweepDuration)

	cutoff := time.Now().AddDate(0, 0, -s.cfg.MetricsRetentionD).Unix()
	deleted, err := s.store.DeleteMetricsSamplesBefore(ctx, cutoff)
	if err != nil {
		log.WithComponent("sampler").Error().Err(err).Msg("retention sweep failed")
		return
	}
	metrics.RetentionRowsDeletedTotal.WithLabelValues("metrics_samples").Add(float64(deleted))
}

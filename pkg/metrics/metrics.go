package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbaas_instances_total",
			Help: "Total number of instances by engine and status",
		},
		[]string{"engine", "status"},
	)

	InstanceCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_instance_create_duration_seconds",
			Help:    "Time taken to provision an instance end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstanceStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_instance_start_duration_seconds",
			Help:    "Time taken to start a container",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstanceStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_instance_stop_duration_seconds",
			Help:    "Time taken to stop a container",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstanceDestroyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_instance_destroy_duration_seconds",
			Help:    "Time taken to fully destroy an instance",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbaas_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbaas_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Health Monitor metrics
	HealthProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_health_probe_duration_seconds",
			Help:    "Time taken to execute a single health probe",
			Buckets: prometheus.DefBuckets,
		},
	)

	HealthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbaas_health_probes_total",
			Help: "Total number of health probes by resulting status",
		},
		[]string{"status"},
	)

	HealthCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_health_cycle_duration_seconds",
			Help:    "Time taken for one health monitor tick across all due instances",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Metrics Sampler metrics
	SampleCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_sample_cycle_duration_seconds",
			Help:    "Time taken for one metrics sampler tick across all due instances",
			Buckets: prometheus.DefBuckets,
		},
	)

	SamplesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbaas_samples_written_total",
			Help: "Total number of metrics samples written",
		},
	)

	RetentionSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_retention_sweep_duration_seconds",
			Help:    "Time taken for the hourly retention sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetentionRowsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbaas_retention_rows_deleted_total",
			Help: "Total number of rows deleted by the retention sweep by table",
		},
		[]string{"table"},
	)

	// Snapshot metrics
	SnapshotCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_snapshot_create_duration_seconds",
			Help:    "Time taken to create a snapshot",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	SnapshotRestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_snapshot_restore_duration_seconds",
			Help:    "Time taken to restore a snapshot",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Lifecycle reconcile metrics
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_reconcile_duration_seconds",
			Help:    "Time taken for a crash-recovery reconcile pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbaas_reconcile_cycles_total",
			Help: "Total number of reconcile passes completed",
		},
	)

	// Migration metrics
	MigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbaas_migration_duration_seconds",
			Help:    "Time taken to apply pending schema migrations on startup",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(InstanceCreateDuration)
	prometheus.MustRegister(InstanceStartDuration)
	prometheus.MustRegister(InstanceStopDuration)
	prometheus.MustRegister(InstanceDestroyDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(HealthProbeDuration)
	prometheus.MustRegister(HealthProbesTotal)
	prometheus.MustRegister(HealthCycleDuration)
	prometheus.MustRegister(SampleCycleDuration)
	prometheus.MustRegister(SamplesWrittenTotal)
	prometheus.MustRegister(RetentionSweepDuration)
	prometheus.MustRegister(RetentionRowsDeletedTotal)
	prometheus.MustRegister(SnapshotCreateDuration)
	prometheus.MustRegister(SnapshotRestoreDuration)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(MigrationDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

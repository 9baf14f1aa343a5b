package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/dbaasd/pkg/api"
	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/health"
	"github.com/cuemby/dbaasd/pkg/lifecycle"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/network"
	"github.com/cuemby/dbaasd/pkg/runtime"
	"github.com/cuemby/dbaasd/pkg/sampler"
	"github.com/cuemby/dbaasd/pkg/sku"
	"github.com/cuemby/dbaasd/pkg/snapshot"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/vnet"
	"github.com/cuemby/dbaasd/pkg/volume"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dbaasd",
	Short:   "dbaasd is a single-node database-as-a-service control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dbaasd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to config YAML (defaults applied over anything missing)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error), overrides config")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs as JSON, overrides config")
	rootCmd.PersistentFlags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the metrics listener")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dbaasd daemon in the foreground",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if json, _ := cmd.Flags().GetBool("log-json"); json {
		cfg.LogJSON = true
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}
	if err := os.MkdirAll(cfg.SnapshotRoot, 0o755); err != nil {
		return fmt.Errorf("create snapshot root: %w", err)
	}

	dbPath := fmt.Sprintf("%s/instances.db", cfg.DataRoot)
	appliedMigrations, err := storage.Migrate(dbPath)
	if err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}
	logger.Info().Int("applied", appliedMigrations).Msg("storage migrated")

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	registry := engine.NewRegistry()
	engine.RegisterDefaults(registry)

	skus := sku.NewCatalog()

	orchestrator, err := runtime.New(cfg.RuntimeSocket, cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("connect to container runtime: %w", err)
	}
	defer orchestrator.Close()

	volumes, err := volume.New(cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("init volume service: %w", err)
	}

	vnets := vnet.New()
	if err := vnets.DefineNetwork(cfg.VnetDefaultName, cfg.VnetCIDR); err != nil {
		return fmt.Errorf("define vnet: %w", err)
	}

	ports := network.NewPublisher()

	lifecycleMgr, err := lifecycle.New(cfg, store, registry, skus, orchestrator, volumes, vnets, ports)
	if err != nil {
		return fmt.Errorf("init lifecycle manager: %w", err)
	}

	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := lifecycleMgr.ReconcileOnce(reconcileCtx); err != nil {
		logger.Warn().Err(err).Msg("startup reconcile reported errors")
	}
	reconcileCancel()
	lifecycleMgr.StartReconciler()
	defer lifecycleMgr.StopReconciler()

	snapshots := snapshot.New(cfg, store, registry, orchestrator)

	healthMonitor := health.New(cfg, store, registry, orchestrator, lifecycleMgr)
	healthMonitor.Start()
	defer healthMonitor.Stop()

	metricSampler := sampler.New(cfg, store, registry, orchestrator)
	metricSampler.Start()
	defer metricSampler.Stop()

	instanceCollector := metrics.NewCollector(instanceListerOf(store))
	instanceCollector.Start()
	defer instanceCollector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("runtime", true, "ready")
	metrics.RegisterComponent("storage", true, "ready")

	metricsAddr := "127.0.0.1:9090"
	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")
	go serveMetrics(metricsAddr, pprofEnabled, logger)
	logger.Info().Str("addr", metricsAddr).Bool("pprof", pprofEnabled).Msg("metrics listening")

	svc := api.New(cfg, store, lifecycleMgr, snapshots, registry, skus, orchestrator)
	router := api.NewRouter(api.RouterConfig{Service: svc})

	apiServer := &http.Server{
		Addr:    cfg.APIListenAddr,
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.APIListenAddr).Msg("api listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	metrics.RegisterComponent("api", true, "ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api server did not shut down cleanly")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func serveMetrics(addr string, pprofEnabled bool, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	if pprofEnabled {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// storeInstanceLister adapts storage.Store to metrics.InstanceLister so
// the instance-count collector never needs to import pkg/storage or
// pkg/types itself.
type storeInstanceLister struct {
	store storage.Store
}

func instanceListerOf(store storage.Store) metrics.InstanceLister {
	return storeInstanceLister{store: store}
}

func (s storeInstanceLister) ListInstances(ctx context.Context) ([]metrics.InstanceCount, error) {
	instances, err := s.store.ListInstances(ctx, storage.InstanceFilter{})
	if err != nil {
		return nil, err
	}
	counts := make([]metrics.InstanceCount, len(instances))
	for i, inst := range instances {
		counts[i] = metrics.InstanceCount{Engine: inst.Engine, Status: string(inst.Status)}
	}
	return counts, nil
}

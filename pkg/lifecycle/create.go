package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/runtime"
	"github.com/cuemby/dbaasd/pkg/types"
)

// containerDataDir names the well-known path each engine's official
// image expects its data volume mounted at. Not part of the Adapter
// interface: it is a property of the image, not of the engine's
// behavior, and every engine in the catalog has exactly one.
var containerDataDir = map[string]string{
	"postgresql":    "/var/lib/postgresql/data",
	"timescaledb":   "/var/lib/postgresql/data",
	"mysql":         "/var/lib/mysql",
	"mariadb":       "/var/lib/mysql",
	"redis":         "/data",
	"dragonfly":     "/data",
	"mongodb":       "/data/db",
	"clickhouse":    "/var/lib/clickhouse",
	"cassandra":     "/var/lib/cassandra",
	"scylladb":      "/var/lib/scylla",
	"elasticsearch": "/usr/share/elasticsearch/data",
	"cockroachdb":   "/cockroach/cockroach-data",
	"neo4j":         "/data",
	"influxdb":      "/var/lib/influxdb2",
	"rabbitmq":      "/var/lib/rabbitmq",
	"kafka":         "/var/lib/kafka/data",
	"mssql":         "/var/opt/mssql",
	"oracle-xe":     "/opt/oracle/oradata",
	"couchdb":       "/opt/couchdb/data",
	"etcd":          "/etcd-data",
	"minio":         "/data",
	"rethinkdb":     "/data",
	"arangodb":      "/var/lib/arangodb3",
	"questdb":       "/root/.questdb/db",
	"victoriametrics": "/victoria-metrics-data",
}

const defaultContainerDataDir = "/var/lib/dbaas/data"

func dataDirFor(tag string) string {
	if d, ok := containerDataDir[tag]; ok {
		return d
	}
	return defaultContainerDataDir
}

// Create provisions a new Instance end to end: validates and resolves
// the request (engine, sku, TLS material, host feasibility), writes
// the pending row, then drives creating -> starting -> running, or
// failed on any step's error — including image pull, port collision
// and readiness timeout.
func (m *Manager) Create(ctx context.Context, spec *types.CreateSpec) (*types.Instance, error) {
	adapter, err := m.registry.Lookup(spec.Engine)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if spec.DatabaseName == "" {
		return nil, fmt.Errorf("%w: database_name is required", ErrValidation)
	}
	resolvedSku, err := m.resolveSku(spec)
	if err != nil {
		return nil, err
	}
	if err := validateTLSMaterial(spec); err != nil {
		return nil, err
	}
	if err := m.checkFeasibility(ctx, resolvedSku); err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", spec.Engine, time.Now().UnixNano())
	}

	vnetName := spec.VnetName
	if vnetName == "" {
		vnetName = m.cfg.VnetDefaultName
	}

	now := time.Now()
	inst := &types.Instance{
		Name:           name,
		Engine:         spec.Engine,
		SkuID:          resolvedSku.ID,
		DatabaseName:   spec.DatabaseName,
		VnetName:       vnetName,
		MemoryLimitMB:  resolvedSku.MemoryMB,
		CPULimit:       resolvedSku.VCPU,
		StorageLimitGB: resolvedSku.StorageGB,
		ExternalAccess: spec.ExternalAccess,
		TLSEnabled:     spec.TLSEnabled,
		Status:         types.InstanceStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.CreateInstance(ctx, inst); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrNameInUse, name)
		}
		return nil, fmt.Errorf("lifecycle: create instance row: %w", err)
	}

	lock := m.lockFor(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstanceCreateDuration)

	logger := log.WithInstanceID(inst.ID)
	logger.Info().Str("engine", spec.Engine).Str("sku", resolvedSku.ID).Msg("creating instance")

	if err := m.transition(ctx, inst, types.InstanceStatusCreating); err != nil {
		return nil, fmt.Errorf("lifecycle: transition to creating: %w", err)
	}

	if err := m.provision(ctx, inst, adapter, spec, resolvedSku); err != nil {
		return inst, m.fail(ctx, inst, err)
	}

	if err := m.startLocked(ctx, inst, adapter); err != nil {
		return inst, err
	}

	return inst, nil
}

// provision performs everything the "creating" state covers: volume,
// credentials, config render, network/port allocation, container
// create. On a failing step the volume and vnet IP allocated so far
// are released before returning; the port recorded on the row stays
// held by the failed row until Destroy.
func (m *Manager) provision(ctx context.Context, inst *types.Instance, adapter engine.Adapter, spec *types.CreateSpec, resolvedSku types.Sku) (err error) {
	defer func() {
		if err == nil {
			return
		}
		if inst.VnetIP != "" {
			_ = m.vnets.Release(inst.VnetName, inst.VnetIP)
			inst.VnetIP = ""
		}
		if inst.VolumePath != "" {
			_ = m.volumes.Delete(inst.ID)
			inst.VolumePath = ""
		}
	}()

	volumePath, err := m.volumes.Create(inst.ID)
	if err != nil {
		return fmt.Errorf("lifecycle: provision volume: %w", err)
	}
	inst.VolumePath = volumePath

	username, err := credential.GenerateUsername(credential.Charset{})
	if err != nil {
		return fmt.Errorf("lifecycle: generate username: %w", err)
	}
	password, err := credential.GeneratePassword(adapter.CharsetConstraints())
	if err != nil {
		return fmt.Errorf("lifecycle: generate password: %w", err)
	}
	inst.Username = username
	inst.Password = password

	if spec.TLSEnabled {
		certPath := filepath.Join(volumePath, "tls.crt")
		keyPath := filepath.Join(volumePath, "tls.key")
		if err := os.WriteFile(certPath, spec.TLSCert, 0600); err != nil {
			return fmt.Errorf("lifecycle: stage tls cert: %w", err)
		}
		if err := os.WriteFile(keyPath, spec.TLSKey, 0600); err != nil {
			return fmt.Errorf("lifecycle: stage tls key: %w", err)
		}
		inst.TLSCertPath = certPath
		inst.TLSKeyPath = keyPath
	}

	if !adapter.Supports().Embedded {
		ip, err := m.vnets.Allocate(inst.VnetName, inst.ID)
		if err != nil {
			return fmt.Errorf("lifecycle: allocate vnet ip: %w", err)
		}
		inst.VnetIP = ip

		host := m.cfg.DefaultHostIP
		if inst.ExternalAccess {
			host = "0.0.0.0"
		}
		var portErr error
		for attempt := 0; attempt < portAttempts; attempt++ {
			if portErr = m.allocatePort(ctx, inst, host); portErr == nil {
				break
			}
		}
		if portErr != nil {
			return fmt.Errorf("lifecycle: allocate port: %w", portErr)
		}
	} else {
		inst.HostAddress = "embedded"
	}

	if err := m.store.UpdateInstance(ctx, inst); err != nil {
		return fmt.Errorf("lifecycle: persist provisioned instance: %w", err)
	}

	if adapter.Supports().Embedded {
		return nil
	}

	configPath, err := renderConfigFile(adapter, inst, resolvedSku, volumePath)
	if err != nil {
		return fmt.Errorf("lifecycle: render config: %w", err)
	}

	containerID, err := m.createContainer(ctx, adapter, inst, resolvedSku, volumePath, configPath)
	if err != nil {
		return err
	}
	inst.ContainerID = containerID
	return m.store.UpdateInstance(ctx, inst)
}

func renderConfigFile(adapter engine.Adapter, inst *types.Instance, resolvedSku types.Sku, volumePath string) (string, error) {
	body, err := adapter.RenderConfig(engine.TemplateData{Instance: inst, Sku: resolvedSku})
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", nil
	}
	configDir := filepath.Join(volumePath, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	configPath := filepath.Join(configDir, adapter.Tag()+".conf")
	if err := os.WriteFile(configPath, body, 0644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return configPath, nil
}

// createContainer pulls the image (retrying up to imagePullAttempts
// times) and creates the container with volume/config/TLS mounts and
// SKU-derived resource caps.
func (m *Manager) createContainer(ctx context.Context, adapter engine.Adapter, inst *types.Instance, resolvedSku types.Sku, volumePath, configPath string) (string, error) {
	var pullErr error
	for attempt := 0; attempt < imagePullAttempts; attempt++ {
		pullCtx, cancel := context.WithTimeout(ctx, time.Duration(6)*time.Minute)
		pullErr = m.runtime.PullImage(pullCtx, adapter.ImageReference())
		cancel()
		if pullErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if pullErr != nil {
		return "", fmt.Errorf("lifecycle: pull image %s: %w", adapter.ImageReference(), pullErr)
	}

	mounts := []specs.Mount{
		{Destination: dataDirFor(adapter.Tag()), Type: "bind", Source: volumePath, Options: []string{"rbind", "rw"}},
	}
	if configPath != "" {
		mounts = append(mounts, specs.Mount{
			Destination: "/etc/dbaasd/" + adapter.Tag() + ".conf",
			Type:        "bind", Source: configPath, Options: []string{"rbind", "ro"},
		})
	}
	if inst.TLSCertPath != "" {
		mounts = append(mounts,
			specs.Mount{Destination: "/etc/dbaasd/tls.crt", Type: "bind", Source: inst.TLSCertPath, Options: []string{"rbind", "ro"}},
			specs.Mount{Destination: "/etc/dbaasd/tls.key", Type: "bind", Source: inst.TLSKeyPath, Options: []string{"rbind", "ro"}},
		)
	}

	readOnlyRootfs := adapter.Supports().ReadOnlyRootfs
	if readOnlyRootfs {
		// Everything this image writes outside the data mount (pid
		// files, unix sockets, scratch files) lands on these two
		// tmpfs mounts instead of the rootfs.
		mounts = append(mounts,
			specs.Mount{Destination: "/tmp", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "nodev", "size=67108864"}},
			specs.Mount{Destination: "/run", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "nodev", "size=16777216"}},
		)
	}

	env := adapter.ContainerEnv(inst)

	containerID, err := m.runtime.Create(ctx, runtime.ContainerSpec{
		ID:             fmt.Sprintf("dbaasd-%d", inst.ID),
		Image:          adapter.ImageReference(),
		Env:            env,
		Mounts:         mounts,
		CPUShares:      resolvedSku.CPUShares,
		MemoryLimitMB:  inst.MemoryLimitMB,
		PidsLimit:      0,
		ReadOnlyRootfs: readOnlyRootfs,
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle: create container: %w", err)
	}
	return containerID, nil
}

// Start begins a created container, or restarts one in starting/failed,
// waiting for the readiness gate (health probe succeeds or the
// per-engine-family timeout elapses).
func (m *Manager) Start(ctx context.Context, id int64) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	adapter, err := m.registry.Lookup(inst.Engine)
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}
	return m.startLocked(ctx, inst, adapter)
}

// startLocked runs the starting -> running transition. Caller must
// already hold inst's lock.
func (m *Manager) startLocked(ctx context.Context, inst *types.Instance, adapter engine.Adapter) error {
	if adapter.Supports().Embedded {
		return m.transition(ctx, inst, types.InstanceStatusRunning)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstanceStartDuration)

	if err := m.transition(ctx, inst, types.InstanceStatusStarting); err != nil {
		return fmt.Errorf("lifecycle: transition to starting: %w", err)
	}

	if err := m.runtime.Start(ctx, inst.ContainerID); err != nil {
		return m.fail(ctx, inst, fmt.Errorf("lifecycle: start container: %w", err))
	}

	if err := m.publishPort(inst); err != nil {
		return m.fail(ctx, inst, err)
	}

	timeout := m.cfg.ReadinessTimeout(readinessFamily(adapter.Tag()))
	if err := m.waitReady(ctx, inst, adapter, timeout); err != nil {
		_ = m.runtime.Stop(ctx, inst.ContainerID, defaultStopGrace)
		_ = m.runtime.Remove(ctx, inst.ContainerID)
		return m.fail(ctx, inst, fmt.Errorf("lifecycle: readiness gate: %w", err))
	}

	return m.transition(ctx, inst, types.InstanceStatusRunning)
}

func (m *Manager) publishPort(inst *types.Instance) error {
	if inst.VnetIP == "" || inst.Port == 0 {
		return nil
	}
	adapter, err := m.registry.Lookup(inst.Engine)
	if err != nil {
		return err
	}
	return m.ports.Publish(inst.ID, inst.HostAddress, inst.Port, inst.VnetIP, adapter.DefaultPort())
}

// waitReady polls the engine's health probe inside the container until
// it succeeds or timeout elapses.
func (m *Manager) waitReady(ctx context.Context, inst *types.Instance, adapter engine.Adapter, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	cmd := adapter.HealthProbeCommand(inst)
	for {
		_, exitCode, err := m.runtime.Exec(ctx, inst.ContainerID, cmd, 5*time.Second)
		if err == nil && exitCode == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for health probe", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// Stop gracefully stops a running instance's container.
func (m *Manager) Stop(ctx context.Context, id int64) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status != types.InstanceStatusRunning {
		return fmt.Errorf("%w: instance %d is %s", ErrNotRunning, id, inst.Status)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstanceStopDuration)

	if err := m.transition(ctx, inst, types.InstanceStatusStopping); err != nil {
		return err
	}
	if err := m.runtime.Stop(ctx, inst.ContainerID, defaultStopGrace); err != nil {
		return m.fail(ctx, inst, fmt.Errorf("lifecycle: stop container: %w", err))
	}
	return m.transition(ctx, inst, types.InstanceStatusStopped)
}

// Restart is stopping -> starting without exposing the intermediate
// stopped state to the API.
func (m *Manager) Restart(ctx context.Context, id int64) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	adapter, err := m.registry.Lookup(inst.Engine)
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	if err := m.transition(ctx, inst, types.InstanceStatusRestarting); err != nil {
		return err
	}
	if inst.ContainerID != "" {
		if err := m.runtime.Stop(ctx, inst.ContainerID, defaultStopGrace); err != nil {
			return m.fail(ctx, inst, fmt.Errorf("lifecycle: stop for restart: %w", err))
		}
	}
	return m.startLocked(ctx, inst, adapter)
}

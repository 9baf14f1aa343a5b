// Package lifecycle is the Instance Lifecycle Manager: the only writer
// of an Instance's status field. It drives every instance through
// pending -> creating -> starting -> running (and the stop/restart/
// destroy branches off it), serializing transitions per instance with
// an exclusive lock, and reconciles persisted state against the
// runtime on process start. Writes go directly to SQLite guarded by a
// per-instance lock rather than through a replicated FSM, since
// clustering is out of scope.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dbaasd/pkg/config"
	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/metrics"
	"github.com/cuemby/dbaasd/pkg/runtime"
	"github.com/cuemby/dbaasd/pkg/sku"
	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Sentinel errors.
var (
	ErrValidation   = errors.New("lifecycle: validation failed")
	ErrNameInUse    = errors.New("lifecycle: name already in use")
	ErrPortExhausted = errors.New("lifecycle: no free port in configured range")
	ErrNotRunning   = errors.New("lifecycle: instance is not running")
)

const (
	imagePullAttempts = 3
	portAttempts      = 3
	defaultStopGrace  = 15 * time.Second
)

// ContainerRuntime is the slice of runtime.Orchestrator the lifecycle
// manager needs; satisfied structurally by *runtime.Orchestrator. A
// local interface keeps this package testable without a containerd
// socket.
type ContainerRuntime interface {
	PullImage(ctx context.Context, imageRef string) error
	Create(ctx context.Context, spec runtime.ContainerSpec) (string, error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	Remove(ctx context.Context, containerID string) error
	Status(ctx context.Context, containerID string) (types.InstanceStatus, error)
	Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error)
}

// VolumeProvisioner is the slice of volume.Service the manager needs.
type VolumeProvisioner interface {
	Create(instanceID int64) (string, error)
	Delete(instanceID int64) error
	Path(instanceID int64) string
}

// IPAllocator is the slice of vnet.Allocator the manager needs.
type IPAllocator interface {
	DefineNetwork(name, cidr string) error
	Allocate(name string, instanceID int64) (string, error)
	Reserve(name, ip string, instanceID int64) error
	Release(name, ip string) error
}

// PortPublisher is the slice of network.Publisher the manager needs.
type PortPublisher interface {
	Publish(instanceID int64, hostIP string, hostPort int, containerIP string, containerPort int) error
	Unpublish(instanceID int64) error
}

// Manager owns every state transition of every Instance.
type Manager struct {
	cfg      *config.Config
	store    storage.Store
	registry *engine.Registry
	skus     *sku.Catalog
	runtime  ContainerRuntime
	volumes  VolumeProvisioner
	vnets    IPAllocator
	ports    PortPublisher

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	portMu sync.Mutex

	stopCh chan struct{}
}

// New builds a Manager and registers the default vnet named by
// cfg.VnetDefaultName. Collaborators are accepted as interfaces so
// tests can substitute fakes for the container runtime, volumes,
// vnet pool and port publisher.
func New(cfg *config.Config, store storage.Store, registry *engine.Registry, skus *sku.Catalog, rt ContainerRuntime, volumes VolumeProvisioner, vnets IPAllocator, ports PortPublisher) (*Manager, error) {
	if err := vnets.DefineNetwork(cfg.VnetDefaultName, cfg.VnetCIDR); err != nil {
		return nil, fmt.Errorf("lifecycle: define default vnet: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		skus:     skus,
		runtime:  rt,
		volumes:  volumes,
		vnets:    vnets,
		ports:    ports,
		locks:    make(map[int64]*sync.Mutex),
		stopCh:   make(chan struct{}),
	}, nil
}

// lockFor returns the per-instance exclusive lock, creating it on
// first use. Locks are never removed, even after an instance is
// destroyed; the bookkeeping cost is one mutex per ever-seen instance
// id, negligible at this control plane's scale.
func (m *Manager) lockFor(id int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) transition(ctx context.Context, inst *types.Instance, status types.InstanceStatus) error {
	inst.Status = status
	inst.UpdatedAt = time.Now()
	return m.store.UpdateInstance(ctx, inst)
}

func (m *Manager) fail(ctx context.Context, inst *types.Instance, cause error) error {
	inst.Status = types.InstanceStatusFailed
	inst.ErrorMessage = cause.Error()
	inst.UpdatedAt = time.Now()
	if err := m.store.UpdateInstance(ctx, inst); err != nil {
		log.WithInstanceID(inst.ID).Error().Err(err).Msg("failed to persist failed status")
	}
	return cause
}

// resolveSku looks up spec.SkuID, synthesizing a custom tier from the
// caller-supplied resource fields when SkuID is "custom" or empty.
func (m *Manager) resolveSku(spec *types.CreateSpec) (types.Sku, error) {
	if spec.SkuID == "" || spec.SkuID == "custom" {
		if spec.MemoryLimitMB <= 0 || spec.CPULimit <= 0 || spec.StorageLimitGB <= 0 {
			return types.Sku{}, fmt.Errorf("%w: custom sku requires memory_limit_mb, cpu_limit and storage_limit_gb", ErrValidation)
		}
		return m.skus.Custom(spec.MemoryLimitMB, spec.CPULimit, spec.StorageLimitGB), nil
	}
	s, ok := m.skus.Lookup(spec.SkuID)
	if !ok {
		return types.Sku{}, fmt.Errorf("%w: unknown sku %q", ErrValidation, spec.SkuID)
	}
	return s, nil
}

// readinessFamily classifies an engine tag for the per-family readiness
// timeout config.ReadinessTimeout reads: relational engines default,
// search/analytical engines get the longer timeout since they
// typically take longer to report ready.
func readinessFamily(tag string) string {
	switch tag {
	case "elasticsearch":
		return "search"
	case "clickhouse", "cassandra", "scylladb", "influxdb", "questdb", "victoriametrics":
		return "analytical"
	default:
		return "default"
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// allocatePort reserves the next free port in the configured range for
// host, persisting it onto inst under the global port-pool lock so a
// concurrent Create cannot observe the same free port twice. The port
// pool itself is just the set of in-use ports recorded on instance
// rows, guarded here by a short-held lock rather than its own table.
func (m *Manager) allocatePort(ctx context.Context, inst *types.Instance, host string) error {
	m.portMu.Lock()
	defer m.portMu.Unlock()

	for p := m.cfg.PortRangeStart; p <= m.cfg.PortRangeEnd; p++ {
		inUse, err := m.store.PortInUse(ctx, host, p)
		if err != nil {
			return fmt.Errorf("lifecycle: check port %d: %w", p, err)
		}
		if inUse {
			continue
		}
		inst.HostAddress = host
		inst.Port = p
		return m.store.UpdateInstance(ctx, inst)
	}
	return ErrPortExhausted
}

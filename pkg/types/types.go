package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// InstanceStatus is the lifecycle state of a managed database instance.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"
	InstanceStatusCreating   InstanceStatus = "creating"
	InstanceStatusStarting   InstanceStatus = "starting"
	InstanceStatusRunning    InstanceStatus = "running"
	InstanceStatusStopping   InstanceStatus = "stopping"
	InstanceStatusStopped    InstanceStatus = "stopped"
	InstanceStatusRestarting InstanceStatus = "restarting"
	InstanceStatusFailed     InstanceStatus = "failed"
	InstanceStatusDestroying InstanceStatus = "destroying"
	InstanceStatusDestroyed  InstanceStatus = "destroyed"
)

// Details is an opaque key-value bag for adapter-specific extras that
// do not warrant a fixed column (health probe stdout detail fields,
// engine-specific metric extras).
type Details map[string]any

// Value implements driver.Valuer so a Details map stores as a JSON text
// column without a separate marshal step at every call site.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, the inverse of Value.
func (d *Details) Scan(src any) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("types: cannot scan %T into Details", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}

// Instance is the central entity: a managed database running inside a
// container, with a persistent volume and generated credentials.
type Instance struct {
	ID             int64          `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	ContainerID    string         `json:"container_id" db:"container_id"`
	Engine         string         `json:"engine" db:"engine"`
	SkuID          string         `json:"sku_id" db:"sku_id"`
	DatabaseName   string         `json:"database_name" db:"database_name"`
	Username       string         `json:"username" db:"username"`
	Password       string         `json:"password" db:"password"`
	HostAddress    string         `json:"host_address" db:"host_address"`
	Port           int            `json:"port" db:"port"`
	VolumePath     string         `json:"volume_path" db:"volume_path"`
	VnetName       string         `json:"vnet_name,omitempty" db:"vnet_name"`
	VnetIP         string         `json:"vnet_ip,omitempty" db:"vnet_ip"`
	MemoryLimitMB  int            `json:"memory_limit_mb" db:"memory_limit_mb"`
	CPULimit       float64        `json:"cpu_limit" db:"cpu_limit"`
	StorageLimitGB int            `json:"storage_limit_gb" db:"storage_limit_gb"`
	ExternalAccess bool           `json:"external_access" db:"external_access"`
	TLSEnabled     bool           `json:"tls_enabled" db:"tls_enabled"`
	TLSCertPath    string         `json:"tls_cert_path,omitempty" db:"tls_cert_path"`
	TLSKeyPath     string         `json:"tls_key_path,omitempty" db:"tls_key_path"`
	Status         InstanceStatus `json:"status" db:"status"`
	ErrorMessage   string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// CreateSpec is the caller-supplied request to provision a new Instance.
type CreateSpec struct {
	Engine         string  `json:"engine"`
	Name           string  `json:"name,omitempty"`
	DatabaseName   string  `json:"database_name"`
	SkuID          string  `json:"sku"`
	MemoryLimitMB  int     `json:"memory_limit_mb,omitempty"`
	CPULimit       float64 `json:"cpu_limit,omitempty"`
	StorageLimitGB int     `json:"storage_limit_gb,omitempty"`
	ExternalAccess bool    `json:"external_access,omitempty"`
	TLSEnabled     bool    `json:"tls_enabled,omitempty"`
	TLSCert        []byte  `json:"tls_cert,omitempty"`
	TLSKey         []byte  `json:"tls_key,omitempty"`
	VnetName       string  `json:"vnet_name,omitempty"`
}

// HealthStatus is the classification produced by a health probe.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// Snapshot is a point-in-time engine-native backup of an Instance.
type Snapshot struct {
	ID         int64     `json:"id" db:"id"`
	InstanceID int64     `json:"instance_id" db:"instance_id"`
	Path       string    `json:"path" db:"path"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	Notes      string    `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// HealthSample is one append-only health-probe observation.
type HealthSample struct {
	ID             int64        `json:"id" db:"id"`
	InstanceID     int64        `json:"instance_id" db:"instance_id"`
	Status         HealthStatus `json:"status" db:"status"`
	ResponseTimeMS int64        `json:"response_time_ms" db:"response_time_ms"`
	Details        Details      `json:"details,omitempty" db:"details"`
	CheckedAt      time.Time    `json:"checked_at" db:"checked_at"`
}

// MetricsSample is one append-only resource/engine metrics observation.
// Pointer fields are nil ("waiting for data"), never zero, when the
// adapter did not supply a value for this cycle.
type MetricsSample struct {
	ID            int64     `json:"id" db:"id"`
	InstanceID    int64     `json:"instance_id" db:"instance_id"`
	CPUPercent    float64   `json:"cpu_percent" db:"cpu_percent"`
	MemoryUsedMB  int64     `json:"memory_used_mb" db:"memory_used_mb"`
	MemoryLimitMB int64     `json:"memory_limit_mb" db:"memory_limit_mb"`
	MemoryPercent float64   `json:"memory_percent" db:"memory_percent"`
	Connections   *int64    `json:"connections,omitempty" db:"connections"`
	ActiveQueries *int64    `json:"active_queries,omitempty" db:"active_queries"`
	CacheHitRatio *float64  `json:"cache_hit_ratio,omitempty" db:"cache_hit_ratio"`
	UptimeSeconds *int64    `json:"uptime_seconds,omitempty" db:"uptime_seconds"`
	CollectedAt   time.Time `json:"collected_at" db:"collected_at"`
}

// Sku fixes the memory, CPU, storage, and scheduling hints for a tier.
type Sku struct {
	ID          string  `json:"id"`
	Series      string  `json:"series"`
	MemoryMB    int     `json:"memory_mb"`
	VCPU        float64 `json:"vcpu"`
	StorageGB   int     `json:"storage_gb"`
	CPUShares   int     `json:"cpu_shares"`
	Swappiness  *int    `json:"swappiness,omitempty"`
	OOMScoreAdj int     `json:"oom_score_adj"`
	Custom      bool    `json:"custom,omitempty"`
}

// EngineInfo describes a registered database engine adapter for the
// ListEngines() API surface operation.
type EngineInfo struct {
	Tag             string `json:"tag"`
	DisplayName     string `json:"display_name"`
	DefaultPort     int    `json:"default_port"`
	SupportsBackup  bool   `json:"supports_backup"`
	SupportsUsers   bool   `json:"supports_users"`
	SupportsLogical bool   `json:"supports_logical_databases"`
	Embedded        bool   `json:"embedded"`
}

// HostCapacity summarizes host-level resource availability.
type HostCapacity struct {
	TotalMemoryMB      int64 `json:"total_memory_mb"`
	AvailableMemoryMB  int64 `json:"available_memory_mb"`
	TotalCPUCores      int   `json:"total_cpu_cores"`
	TotalStorageGB     int64 `json:"total_storage_gb"`
	AvailableStorageGB int64 `json:"available_storage_gb"`
	InstanceCount      int   `json:"instance_count"`
}

// LogEntry is one line of container log output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // stdout|stderr
	Message   string    `json:"message"`
}

// Stats is a live container resource usage snapshot.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  int64   `json:"memory_used_mb"`
	MemoryLimitMB int64   `json:"memory_limit_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	NetworkRxKB   int64   `json:"network_rx_kb"`
	NetworkTxKB   int64   `json:"network_tx_kb"`
}

// Inspect is the low-level runtime view of a container.
type Inspect struct {
	ContainerID string            `json:"container_id"`
	Image       string            `json:"image"`
	State       string            `json:"state"`
	Pid         int               `json:"pid"`
	StartedAt   time.Time         `json:"started_at"`
	Labels      map[string]string `json:"labels"`
	Mounts      []string          `json:"mounts"`
}

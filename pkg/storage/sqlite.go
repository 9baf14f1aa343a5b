package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/dbaasd/pkg/types"
)

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("storage: not found")

// SQLiteStore implements Store over a single-file instances.db,
// migrated by Migrate before first use.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (and does not migrate) the database at dbPath.
// Callers run Migrate(dbPath) first during daemon/migration-tool
// startup.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serializes writers anyway; avoids SQLITE_BUSY churn
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *types.Instance) error {
	now := inst.CreatedAt
	inst.UpdatedAt = now
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO instances (
			name, container_id, engine, sku_id, database_name, username, password,
			host_address, port, volume_path, vnet_name, vnet_ip,
			memory_limit_mb, cpu_limit, storage_limit_gb,
			external_access, tls_enabled, tls_cert_path, tls_key_path,
			status, error_message, created_at, updated_at
		) VALUES (
			:name, :container_id, :engine, :sku_id, :database_name, :username, :password,
			:host_address, :port, :volume_path, :vnet_name, :vnet_ip,
			:memory_limit_mb, :cpu_limit, :storage_limit_gb,
			:external_access, :tls_enabled, :tls_cert_path, :tls_key_path,
			:status, :error_message, :created_at, :updated_at
		)`, inst)
	if err != nil {
		return fmt.Errorf("storage: create instance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create instance: read id: %w", err)
	}
	inst.ID = id
	return nil
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id int64) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.GetContext(ctx, &inst, `SELECT * FROM instances WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get instance %d: %w", id, err)
	}
	return &inst, nil
}

func (s *SQLiteStore) GetInstanceByName(ctx context.Context, name string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.GetContext(ctx, &inst, `SELECT * FROM instances WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get instance by name %q: %w", name, err)
	}
	return &inst, nil
}

func (s *SQLiteStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*types.Instance, error) {
	query := `SELECT * FROM instances WHERE 1=1`
	var args []any
	if filter.Engine != "" {
		query += ` AND engine = ?`
		args = append(args, filter.Engine)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	var instances []*types.Instance
	if err := s.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, fmt.Errorf("storage: list instances: %w", err)
	}
	return instances, nil
}

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *types.Instance) error {
	inst.UpdatedAt = time.Now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE instances SET
			container_id = :container_id,
			username = :username,
			volume_path = :volume_path,
			host_address = :host_address,
			port = :port,
			vnet_ip = :vnet_ip,
			memory_limit_mb = :memory_limit_mb,
			cpu_limit = :cpu_limit,
			storage_limit_gb = :storage_limit_gb,
			tls_enabled = :tls_enabled,
			tls_cert_path = :tls_cert_path,
			tls_key_path = :tls_key_path,
			password = :password,
			status = :status,
			error_message = :error_message,
			updated_at = :updated_at
		WHERE id = :id`, inst)
	if err != nil {
		return fmt.Errorf("storage: update instance %d: %w", inst.ID, err)
	}
	return checkRowAffected(res, "instance", inst.ID)
}

func (s *SQLiteStore) DeleteInstance(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete instance %d: %w", id, err)
	}
	return checkRowAffected(res, "instance", id)
}

func (s *SQLiteStore) PortInUse(ctx context.Context, host string, port int) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM instances
		WHERE host_address = ? AND port = ? AND status != 'destroyed'`, host, port)
	if err != nil {
		return false, fmt.Errorf("storage: check port in use: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snap *types.Snapshot) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO snapshots (instance_id, path, size_bytes, notes, created_at)
		VALUES (:instance_id, :path, :size_bytes, :notes, :created_at)`, snap)
	if err != nil {
		return fmt.Errorf("storage: create snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create snapshot: read id: %w", err)
	}
	snap.ID = id
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, instanceID, id int64) (*types.Snapshot, error) {
	var snap types.Snapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT * FROM snapshots WHERE instance_id = ? AND id = ?`, instanceID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get snapshot %d: %w", id, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, instanceID int64) ([]*types.Snapshot, error) {
	var snaps []*types.Snapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT * FROM snapshots WHERE instance_id = ? ORDER BY created_at DESC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("storage: list snapshots for instance %d: %w", instanceID, err)
	}
	return snaps, nil
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, instanceID, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE instance_id = ? AND id = ?`, instanceID, id)
	if err != nil {
		return fmt.Errorf("storage: delete snapshot %d: %w", id, err)
	}
	return checkRowAffected(res, "snapshot", id)
}

func (s *SQLiteStore) CreateHealthSample(ctx context.Context, sample *types.HealthSample) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO health_samples (instance_id, status, response_time_ms, details, checked_at)
		VALUES (:instance_id, :status, :response_time_ms, :details, :checked_at)`, sample)
	if err != nil {
		return fmt.Errorf("storage: create health sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create health sample: read id: %w", err)
	}
	sample.ID = id
	return nil
}

func (s *SQLiteStore) ListHealthSamples(ctx context.Context, instanceID int64, limit int) ([]*types.HealthSample, error) {
	if limit <= 0 {
		limit = 100
	}
	var samples []*types.HealthSample
	err := s.db.SelectContext(ctx, &samples, `
		SELECT * FROM health_samples WHERE instance_id = ?
		ORDER BY checked_at DESC LIMIT ?`, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list health samples for instance %d: %w", instanceID, err)
	}
	return samples, nil
}

// TrimHealthSamples deletes all but the most recent keep rows for
// instanceID, returning the number of rows removed.
func (s *SQLiteStore) TrimHealthSamples(ctx context.Context, instanceID int64, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM health_samples
		WHERE instance_id = ? AND id NOT IN (
			SELECT id FROM health_samples WHERE instance_id = ?
			ORDER BY checked_at DESC LIMIT ?
		)`, instanceID, instanceID, keep)
	if err != nil {
		return 0, fmt.Errorf("storage: trim health samples for instance %d: %w", instanceID, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CreateMetricsSample(ctx context.Context, sample *types.MetricsSample) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO metrics_samples (
			instance_id, cpu_percent, memory_used_mb, memory_limit_mb, memory_percent,
			connections, active_queries, cache_hit_ratio, uptime_seconds, collected_at
		) VALUES (
			:instance_id, :cpu_percent, :memory_used_mb, :memory_limit_mb, :memory_percent,
			:connections, :active_queries, :cache_hit_ratio, :uptime_seconds, :collected_at
		)`, sample)
	if err != nil {
		return fmt.Errorf("storage: create metrics sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create metrics sample: read id: %w", err)
	}
	sample.ID = id
	return nil
}

func (s *SQLiteStore) ListMetricsSamples(ctx context.Context, instanceID int64, since int64) ([]*types.MetricsSample, error) {
	var samples []*types.MetricsSample
	err := s.db.SelectContext(ctx, &samples, `
		SELECT * FROM metrics_samples
		WHERE instance_id = ? AND collected_at >= ?
		ORDER BY collected_at ASC`, instanceID, time.Unix(since, 0))
	if err != nil {
		return nil, fmt.Errorf("storage: list metrics samples for instance %d: %w", instanceID, err)
	}
	return samples, nil
}

// DeleteMetricsSamplesBefore removes every metrics sample older than
// cutoff (unix seconds), returning the number of rows removed. Used by
// the retention sweep.
func (s *SQLiteStore) DeleteMetricsSamplesBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM metrics_samples WHERE collected_at < ?`, time.Unix(cutoff, 0))
	if err != nil {
		return 0, fmt.Errorf("storage: sweep metrics samples: %w", err)
	}
	return res.RowsAffected()
}

func checkRowAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrNotFound, kind, id)
	}
	return nil
}

package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

// sqliteAdapter represents the embedded, single-file engine family:
// no network listener and no container (the lifecycle manager
// provisions only the volume for an embedded engine), identified by
// its volume file rather than a host:port pair.
type sqliteAdapter struct{}

func newSQLiteAdapter() Adapter { return sqliteAdapter{} }

func (sqliteAdapter) Tag() string            { return "sqlite" }
func (sqliteAdapter) DisplayName() string    { return "SQLite" }
func (sqliteAdapter) ImageReference() string { return "docker.io/library/alpine:3.20" }
func (sqliteAdapter) DefaultPort() int       { return 0 }

func (sqliteAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{}
}

func (sqliteAdapter) RenderConfig(data TemplateData) ([]byte, error) { return nil, nil }

func (sqliteAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("file:%s/%s.db", instance.VolumePath, instance.DatabaseName)
}

func (sqliteAdapter) Supports() Supports {
	return Supports{Embedded: true, Backup: true}
}

func (sqliteAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	dbPath := fmt.Sprintf("%s/%s.db", instance.VolumePath, instance.DatabaseName)
	return Command{Path: "sqlite3", Args: []string{dbPath, fmt.Sprintf(".backup '%s'", destPath)}}
}

func (sqliteAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	dbPath := fmt.Sprintf("%s/%s.db", instance.VolumePath, instance.DatabaseName)
	return Command{Path: "cp", Args: []string{sourcePath, dbPath}}
}

func (sqliteAdapter) HealthProbeCommand(instance *types.Instance) Command {
	dbPath := fmt.Sprintf("%s/%s.db", instance.VolumePath, instance.DatabaseName)
	return Command{Path: "sqlite3", Args: []string{dbPath, "PRAGMA quick_check;"}}
}

func (sqliteAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return nil
}

func (sqliteAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{}
}

func (sqliteAdapter) CharsetConstraints() credential.Charset {
	return credential.DefaultPasswordCharset()
}

func (sqliteAdapter) SnapshotExt() string { return "db" }

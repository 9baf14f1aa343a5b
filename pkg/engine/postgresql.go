package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

const postgresConfigTemplate = `
listen_addresses = '*'
max_connections = {{ .Sku.VCPU | mul 50 | int }}
shared_buffers = '{{ div .Sku.MemoryMB 4 }}MB'
effective_cache_size = '{{ div .Sku.MemoryMB 2 }}MB'
`

type postgresqlAdapter struct{}

func newPostgreSQLAdapter() Adapter { return postgresqlAdapter{} }

func (postgresqlAdapter) Tag() string         { return "postgresql" }
func (postgresqlAdapter) DisplayName() string { return "PostgreSQL" }
func (postgresqlAdapter) ImageReference() string {
	return "docker.io/library/postgres:16-alpine"
}
func (postgresqlAdapter) DefaultPort() int { return 5432 }

func (postgresqlAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"POSTGRES_USER":     spec.Username,
		"POSTGRES_PASSWORD": spec.Password,
		"POSTGRES_DB":       spec.DatabaseName,
	}
}

func (postgresqlAdapter) RenderConfig(data TemplateData) ([]byte, error) {
	return renderTemplate("postgresql.conf", postgresConfigTemplate, data)
}

func (postgresqlAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		instance.Username, instance.Password, instance.HostAddress, instance.Port, instance.DatabaseName)
}

func (postgresqlAdapter) Supports() Supports {
	return Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}
}

func (postgresqlAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "pg_dump", Args: []string{
		"-U", instance.Username, "-d", instance.DatabaseName, "-F", "c", "-f", destPath,
	}}
}

func (postgresqlAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "pg_restore", Args: []string{
		"-U", instance.Username, "-d", instance.DatabaseName, "--clean", "--if-exists", sourcePath,
	}}
}

func (postgresqlAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "pg_isready", Args: []string{"-U", instance.Username, "-d", instance.DatabaseName}}
}

func (postgresqlAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name: "connections",
			Command: Command{Path: "psql", Args: []string{
				"-U", instance.Username, "-d", instance.DatabaseName, "-t", "-c",
				"SELECT count(*) FROM pg_stat_activity;",
			}},
		},
		{
			Name: "cache_hit_ratio",
			Command: Command{Path: "psql", Args: []string{
				"-U", instance.Username, "-d", instance.DatabaseName, "-t", "-c",
				"SELECT sum(blks_hit)::float / nullif(sum(blks_hit)+sum(blks_read),0) FROM pg_stat_database;",
			}},
		},
	}
}

func (postgresqlAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "psql", Args: []string{
		"-U", instance.Username, "-d", instance.DatabaseName, "-c",
		fmt.Sprintf("ALTER USER %s WITH PASSWORD '%s';", instance.Username, newPassword),
	}}
}

func (postgresqlAdapter) CharsetConstraints() credential.Charset {
	return credential.DefaultPasswordCharset()
}

func (postgresqlAdapter) SnapshotExt() string { return "dump" }

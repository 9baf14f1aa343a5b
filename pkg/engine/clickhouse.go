package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

type clickhouseAdapter struct{}

func newClickHouseAdapter() Adapter { return clickhouseAdapter{} }

func (clickhouseAdapter) Tag() string            { return "clickhouse" }
func (clickhouseAdapter) DisplayName() string    { return "ClickHouse" }
func (clickhouseAdapter) ImageReference() string { return "docker.io/clickhouse/clickhouse-server:24" }
func (clickhouseAdapter) DefaultPort() int       { return 9000 }

func (clickhouseAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"CLICKHOUSE_USER":                      spec.Username,
		"CLICKHOUSE_PASSWORD":                  spec.Password,
		"CLICKHOUSE_DB":                        spec.DatabaseName,
		"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1",
	}
}

func (clickhouseAdapter) RenderConfig(data TemplateData) ([]byte, error) { return nil, nil }

func (clickhouseAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		instance.Username, instance.Password, instance.HostAddress, instance.Port, instance.DatabaseName)
}

func (clickhouseAdapter) Supports() Supports {
	return Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}
}

func (clickhouseAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf(
			"clickhouse-client --user %s --password %s --query='BACKUP DATABASE %s TO File(%s)'",
			instance.Username, instance.Password, instance.DatabaseName, destPath,
		),
	}}
}

func (clickhouseAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf(
			"clickhouse-client --user %s --password %s --query='RESTORE DATABASE %s FROM File(%s)'",
			instance.Username, instance.Password, instance.DatabaseName, sourcePath,
		),
	}}
}

func (clickhouseAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "clickhouse-client", Args: []string{
		"--user", instance.Username, "--password", instance.Password, "--query", "SELECT 1",
	}}
}

func (clickhouseAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name: "active_queries",
			Command: Command{Path: "clickhouse-client", Args: []string{
				"--user", instance.Username, "--password", instance.Password,
				"--query", "SELECT count() FROM system.processes",
			}},
		},
	}
}

func (clickhouseAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "clickhouse-client", Args: []string{
		"--user", instance.Username, "--password", instance.Password, "--query",
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY '%s'", instance.Username, newPassword),
	}}
}

func (clickhouseAdapter) CharsetConstraints() credential.Charset {
	return credential.DefaultPasswordCharset()
}

func (clickhouseAdapter) SnapshotExt() string { return "backup" }

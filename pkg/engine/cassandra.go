package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

type cassandraAdapter struct{}

func newCassandraAdapter() Adapter { return cassandraAdapter{} }

func (cassandraAdapter) Tag() string            { return "cassandra" }
func (cassandraAdapter) DisplayName() string    { return "Cassandra" }
func (cassandraAdapter) ImageReference() string { return "docker.io/library/cassandra:5" }
func (cassandraAdapter) DefaultPort() int       { return 9042 }

func (cassandraAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"CASSANDRA_CLUSTER_NAME": spec.Name,
	}
}

func (cassandraAdapter) RenderConfig(data TemplateData) ([]byte, error) { return nil, nil }

func (cassandraAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("cassandra://%s:%s@%s:%d/%s",
		instance.Username, instance.Password, instance.HostAddress, instance.Port, instance.DatabaseName)
}

func (cassandraAdapter) Supports() Supports {
	return Supports{LogicalDatabases: true, Backup: true, ReadOnlyRootfs: true}
}

func (cassandraAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "nodetool", Args: []string{"snapshot", "-t", destPath, instance.DatabaseName}}
}

func (cassandraAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf("cp -r %s/* /var/lib/cassandra/data/%s/", sourcePath, instance.DatabaseName),
	}}
}

func (cassandraAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "nodetool", Args: []string{"status"}}
}

func (cassandraAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{Name: "compactionstats", Command: Command{Path: "nodetool", Args: []string{"compactionstats"}}},
	}
}

func (cassandraAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{}
}

func (cassandraAdapter) CharsetConstraints() credential.Charset {
	return credential.DefaultPasswordCharset()
}

func (cassandraAdapter) SnapshotExt() string { return "tar" }

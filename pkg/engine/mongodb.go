package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

type mongodbAdapter struct{}

func newMongoDBAdapter() Adapter { return mongodbAdapter{} }

func (mongodbAdapter) Tag() string            { return "mongodb" }
func (mongodbAdapter) DisplayName() string    { return "MongoDB" }
func (mongodbAdapter) ImageReference() string { return "docker.io/library/mongo:7" }
func (mongodbAdapter) DefaultPort() int       { return 27017 }

func (mongodbAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"MONGO_INITDB_ROOT_USERNAME": spec.Username,
		"MONGO_INITDB_ROOT_PASSWORD": spec.Password,
		"MONGO_INITDB_DATABASE":      spec.DatabaseName,
	}
}

func (mongodbAdapter) RenderConfig(data TemplateData) ([]byte, error) {
	return nil, nil
}

func (mongodbAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s",
		instance.Username, instance.Password, instance.HostAddress, instance.Port, instance.DatabaseName)
}

func (mongodbAdapter) Supports() Supports {
	return Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}
}

func (mongodbAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "mongodump", Args: []string{
		"--username", instance.Username, "--password", instance.Password,
		"--db", instance.DatabaseName, "--archive=" + destPath, "--gzip",
	}}
}

func (mongodbAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "mongorestore", Args: []string{
		"--username", instance.Username, "--password", instance.Password,
		"--db", instance.DatabaseName, "--archive=" + sourcePath, "--gzip", "--drop",
	}}
}

func (mongodbAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "mongosh", Args: []string{
		"--username", instance.Username, "--password", instance.Password,
		"--eval", "db.adminCommand('ping')",
	}}
}

func (mongodbAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name: "serverStatus",
			Command: Command{Path: "mongosh", Args: []string{
				"--username", instance.Username, "--password", instance.Password,
				"--quiet", "--eval", "JSON.stringify(db.serverStatus().connections)",
			}},
		},
	}
}

func (mongodbAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "mongosh", Args: []string{
		"--username", instance.Username, "--password", instance.Password, "--eval",
		fmt.Sprintf("db.getSiblingDB('admin').changeUserPassword('%s', '%s')", instance.Username, newPassword),
	}}
}

func (mongodbAdapter) CharsetConstraints() credential.Charset {
	return credential.Charset{Lower: true, Upper: true, Digits: true}
}

func (mongodbAdapter) SnapshotExt() string { return "archive" }

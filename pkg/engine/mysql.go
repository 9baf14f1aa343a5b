package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

const mysqlConfigTemplate = `
[mysqld]
max_connections = {{ .Sku.VCPU | mul 30 | int }}
innodb_buffer_pool_size = {{ div .Sku.MemoryMB 2 }}M
`

// mysqlAdapter covers both MySQL and MariaDB: the two speak the same
// wire protocol and client tooling, differing only in tag/name/image.
type mysqlAdapter struct {
	tag         string
	displayName string
	image       string
}

func newMySQLAdapter(tag, displayName, image string) Adapter {
	return mysqlAdapter{tag: tag, displayName: displayName, image: image}
}

func (a mysqlAdapter) Tag() string            { return a.tag }
func (a mysqlAdapter) DisplayName() string    { return a.displayName }
func (a mysqlAdapter) ImageReference() string { return a.image }
func (mysqlAdapter) DefaultPort() int         { return 3306 }

func (mysqlAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"MYSQL_ROOT_PASSWORD": spec.Password,
		"MYSQL_USER":          spec.Username,
		"MYSQL_PASSWORD":      spec.Password,
		"MYSQL_DATABASE":      spec.DatabaseName,
	}
}

func (mysqlAdapter) RenderConfig(data TemplateData) ([]byte, error) {
	return renderTemplate("my.cnf", mysqlConfigTemplate, data)
}

func (mysqlAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("mysql://%s:%s@%s:%d/%s",
		instance.Username, instance.Password, instance.HostAddress, instance.Port, instance.DatabaseName)
}

func (mysqlAdapter) Supports() Supports {
	return Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}
}

func (mysqlAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "mysqldump", Args: []string{
		"-u", instance.Username, fmt.Sprintf("-p%s", instance.Password),
		instance.DatabaseName, "-r", destPath,
	}}
}

func (mysqlAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf("mysql -u %s -p%s %s < %s",
			instance.Username, instance.Password, instance.DatabaseName, sourcePath),
	}}
}

func (mysqlAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "mysqladmin", Args: []string{
		"ping", "-u", instance.Username, fmt.Sprintf("-p%s", instance.Password),
	}}
}

func (mysqlAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name: "connections",
			Command: Command{Path: "mysql", Args: []string{
				"-u", instance.Username, fmt.Sprintf("-p%s", instance.Password),
				"-N", "-e", "SHOW STATUS LIKE 'Threads_connected';",
			}},
		},
	}
}

func (mysqlAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "mysql", Args: []string{
		"-u", instance.Username, fmt.Sprintf("-p%s", instance.Password), "-e",
		fmt.Sprintf("ALTER USER '%s'@'%%' IDENTIFIED BY '%s';", instance.Username, newPassword),
	}}
}

func (mysqlAdapter) CharsetConstraints() credential.Charset {
	return credential.Charset{Lower: true, Upper: true, Digits: true}
}

func (mysqlAdapter) SnapshotExt() string { return "sql" }

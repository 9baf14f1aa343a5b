package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

const redisConfigTemplate = `
maxmemory {{ div .Sku.MemoryMB 2 }}mb
maxmemory-policy allkeys-lru
requirepass {{ .Instance.Password }}
`

type redisAdapter struct{}

func newRedisAdapter() Adapter { return redisAdapter{} }

func (redisAdapter) Tag() string              { return "redis" }
func (redisAdapter) DisplayName() string      { return "Redis" }
func (redisAdapter) ImageReference() string   { return "docker.io/library/redis:7-alpine" }
func (redisAdapter) DefaultPort() int         { return 6379 }

func (redisAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{}
}

func (redisAdapter) RenderConfig(data TemplateData) ([]byte, error) {
	return renderTemplate("redis.conf", redisConfigTemplate, data)
}

func (redisAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("redis://:%s@%s:%d", instance.Password, instance.HostAddress, instance.Port)
}

func (redisAdapter) Supports() Supports {
	return Supports{Backup: true, Users: true, ReadOnlyRootfs: true}
}

func (redisAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf("redis-cli -a %s --rdb %s", instance.Password, destPath),
	}}
}

func (redisAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "sh", Args: []string{
		"-c", fmt.Sprintf("cp %s /data/dump.rdb", sourcePath),
	}}
}

func (redisAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "redis-cli", Args: []string{"-a", instance.Password, "ping"}}
}

func (redisAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name:    "info",
			Command: Command{Path: "redis-cli", Args: []string{"-a", instance.Password, "info"}},
		},
	}
}

func (redisAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "redis-cli", Args: []string{
		"-a", instance.Password, "config", "set", "requirepass", newPassword,
	}}
}

func (redisAdapter) CharsetConstraints() credential.Charset {
	return credential.Charset{Lower: true, Upper: true, Digits: true}
}

func (redisAdapter) SnapshotExt() string { return "rdb" }

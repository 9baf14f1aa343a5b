package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

type elasticsearchAdapter struct{}

func newElasticsearchAdapter() Adapter { return elasticsearchAdapter{} }

func (elasticsearchAdapter) Tag() string         { return "elasticsearch" }
func (elasticsearchAdapter) DisplayName() string { return "Elasticsearch" }
func (elasticsearchAdapter) ImageReference() string {
	return "docker.io/elastic/elasticsearch:8.15.0"
}
func (elasticsearchAdapter) DefaultPort() int { return 9200 }

func (elasticsearchAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	return map[string]string{
		"discovery.type":                   "single-node",
		"ELASTIC_PASSWORD":                 spec.Password,
		"xpack.security.enabled":           "true",
	}
}

func (elasticsearchAdapter) RenderConfig(data TemplateData) ([]byte, error) { return nil, nil }

func (elasticsearchAdapter) ConnectionString(instance *types.Instance) string {
	return fmt.Sprintf("https://elastic:%s@%s:%d", instance.Password, instance.HostAddress, instance.Port)
}

func (elasticsearchAdapter) Supports() Supports {
	return Supports{Backup: true, Users: true, ReadOnlyRootfs: true}
}

func (elasticsearchAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	return Command{Path: "curl", Args: []string{
		"-u", fmt.Sprintf("elastic:%s", instance.Password), "-X", "PUT",
		fmt.Sprintf("https://localhost:9200/_snapshot/dbaasd/%s?wait_for_completion=true", destPath),
	}}
}

func (elasticsearchAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	return Command{Path: "curl", Args: []string{
		"-u", fmt.Sprintf("elastic:%s", instance.Password), "-X", "POST",
		fmt.Sprintf("https://localhost:9200/_snapshot/dbaasd/%s/_restore", sourcePath),
	}}
}

func (elasticsearchAdapter) HealthProbeCommand(instance *types.Instance) Command {
	return Command{Path: "curl", Args: []string{
		"-u", fmt.Sprintf("elastic:%s", instance.Password), "-s", "https://localhost:9200/_cluster/health",
	}}
}

func (elasticsearchAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	return []MetricsQuery{
		{
			Name: "stats",
			Command: Command{Path: "curl", Args: []string{
				"-u", fmt.Sprintf("elastic:%s", instance.Password), "-s", "https://localhost:9200/_stats",
			}},
		},
	}
}

func (elasticsearchAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	return Command{Path: "curl", Args: []string{
		"-u", fmt.Sprintf("elastic:%s", instance.Password), "-X", "POST",
		"-H", "Content-Type: application/json",
		"-d", fmt.Sprintf(`{"password":"%s"}`, newPassword),
		"https://localhost:9200/_security/user/elastic/_password",
	}}
}

func (elasticsearchAdapter) CharsetConstraints() credential.Charset {
	return credential.DefaultPasswordCharset()
}

func (elasticsearchAdapter) SnapshotExt() string { return "snapshot" }

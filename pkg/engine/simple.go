package engine

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

// simpleSpec is the declarative description of an engine whose adapter
// needs nothing beyond env substitution, a connection URI template and
// a handful of CLI commands — most of the catalog fits this shape, so
// a new engine is a table row rather than a new type.
type simpleSpec struct {
	tag           string
	displayName   string
	image         string
	port          int
	schemeWithAuth bool
	env           func(spec *types.Instance) map[string]string
	connString    func(instance *types.Instance) string
	healthProbe   func(instance *types.Instance) Command
	snapshot      func(instance *types.Instance, destPath string) Command
	restore       func(instance *types.Instance, sourcePath string) Command
	metrics       func(instance *types.Instance) []MetricsQuery
	rotate        func(instance *types.Instance, newPassword string) Command
	supports      Supports
	snapshotExt   string
	charset       credential.Charset
}

type tableAdapter struct{ s simpleSpec }

func (a tableAdapter) Tag() string              { return a.s.tag }
func (a tableAdapter) DisplayName() string      { return a.s.displayName }
func (a tableAdapter) ImageReference() string   { return a.s.image }
func (a tableAdapter) DefaultPort() int         { return a.s.port }

func (a tableAdapter) ContainerEnv(spec *types.Instance) map[string]string {
	if a.s.env == nil {
		return map[string]string{}
	}
	return a.s.env(spec)
}

func (tableAdapter) RenderConfig(data TemplateData) ([]byte, error) { return nil, nil }

func (a tableAdapter) ConnectionString(instance *types.Instance) string {
	if a.s.connString != nil {
		return a.s.connString(instance)
	}
	if a.s.schemeWithAuth {
		return fmt.Sprintf("%s://%s:%s@%s:%d", a.s.tag, instance.Username, instance.Password, instance.HostAddress, instance.Port)
	}
	return fmt.Sprintf("%s://%s:%d", a.s.tag, instance.HostAddress, instance.Port)
}

func (a tableAdapter) Supports() Supports { return a.s.supports }

func (a tableAdapter) SnapshotCommand(instance *types.Instance, destPath string) Command {
	if a.s.snapshot == nil {
		return Command{}
	}
	return a.s.snapshot(instance, destPath)
}

func (a tableAdapter) RestoreCommand(instance *types.Instance, sourcePath string) Command {
	if a.s.restore == nil {
		return Command{}
	}
	return a.s.restore(instance, sourcePath)
}

func (a tableAdapter) HealthProbeCommand(instance *types.Instance) Command {
	if a.s.healthProbe == nil {
		return Command{Path: "true"}
	}
	return a.s.healthProbe(instance)
}

func (a tableAdapter) CollectMetricsQueries(instance *types.Instance) []MetricsQuery {
	if a.s.metrics == nil {
		return nil
	}
	return a.s.metrics(instance)
}

func (a tableAdapter) RotateCredentialsCommand(instance *types.Instance, newPassword string) Command {
	if a.s.rotate == nil {
		return Command{}
	}
	return a.s.rotate(instance, newPassword)
}

func (a tableAdapter) CharsetConstraints() credential.Charset {
	if (a.s.charset == credential.Charset{}) {
		return credential.DefaultPasswordCharset()
	}
	return a.s.charset
}

func (a tableAdapter) SnapshotExt() string {
	if a.s.snapshotExt == "" {
		return "tar"
	}
	return a.s.snapshotExt
}

// simpleAdapters returns the remainder of the built-in catalog: engines
// with no bespoke config-rendering or multi-step protocol needs.
func simpleAdapters() []Adapter {
	specs := []simpleSpec{
		{
			tag: "timescaledb", displayName: "TimescaleDB", image: "docker.io/timescale/timescaledb:latest-pg16",
			port: 5432, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"POSTGRES_USER": s.Username, "POSTGRES_PASSWORD": s.Password, "POSTGRES_DB": s.DatabaseName}
			},
			connString: func(i *types.Instance) string {
				return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", i.Username, i.Password, i.HostAddress, i.Port, i.DatabaseName)
			},
			healthProbe: func(i *types.Instance) Command { return Command{Path: "pg_isready", Args: []string{"-U", i.Username}} },
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "pg_dump", Args: []string{"-U", i.Username, "-d", i.DatabaseName, "-F", "c", "-f", dest}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "pg_restore", Args: []string{"-U", i.Username, "-d", i.DatabaseName, "--clean", "--if-exists", src}}
			},
			supports: Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "dump",
		},
		{
			tag: "cockroachdb", displayName: "CockroachDB", image: "docker.io/cockroachdb/cockroach:v24.1.0",
			port: 26257, schemeWithAuth: true,
			healthProbe: func(i *types.Instance) Command { return Command{Path: "cockroach", Args: []string{"node", "status", "--insecure"}} },
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "cockroach", Args: []string{"sql", "--insecure", "-e", fmt.Sprintf("BACKUP DATABASE %s INTO '%s'", i.DatabaseName, dest)}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "cockroach", Args: []string{"sql", "--insecure", "-e", fmt.Sprintf("RESTORE DATABASE %s FROM '%s'", i.DatabaseName, src)}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "cockroach", Args: []string{
					"sql", "--insecure", "-e",
					fmt.Sprintf("ALTER USER %s WITH PASSWORD '%s'", i.Username, pw),
				}}
			},
			supports: Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "backup",
		},
		{
			tag: "neo4j", displayName: "Neo4j", image: "docker.io/library/neo4j:5",
			port: 7687, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"NEO4J_AUTH": fmt.Sprintf("%s/%s", s.Username, s.Password)}
			},
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "cypher-shell", Args: []string{"-u", i.Username, "-p", i.Password, "RETURN 1"}}
			},
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "neo4j-admin", Args: []string{"database", "dump", i.DatabaseName, "--to-path=" + dest}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "neo4j-admin", Args: []string{"database", "load", i.DatabaseName, "--from-path=" + src}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "cypher-shell", Args: []string{"-u", i.Username, "-p", i.Password,
					fmt.Sprintf("ALTER CURRENT USER SET PASSWORD FROM '%s' TO '%s'", i.Password, pw)}}
			},
			supports: Supports{Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "dump",
		},
		{
			tag: "influxdb", displayName: "InfluxDB", image: "docker.io/library/influxdb:2",
			port: 8086, schemeWithAuth: false,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{
					"DOCKER_INFLUXDB_INIT_MODE":     "setup",
					"DOCKER_INFLUXDB_INIT_USERNAME": s.Username,
					"DOCKER_INFLUXDB_INIT_PASSWORD": s.Password,
					"DOCKER_INFLUXDB_INIT_BUCKET":   s.DatabaseName,
				}
			},
			healthProbe: func(i *types.Instance) Command { return Command{Path: "influx", Args: []string{"ping"}} },
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "influx", Args: []string{"backup", dest}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "influx", Args: []string{"restore", src}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "influx", Args: []string{"user", "password", "-n", i.Username}}
			},
			supports: Supports{Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "tar",
		},
		{
			tag: "memcached", displayName: "Memcached", image: "docker.io/library/memcached:1.6-alpine",
			port: 11211,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "sh", Args: []string{"-c", "echo stats | nc -q1 localhost 11211"}}
			},
			supports: Supports{ReadOnlyRootfs: true},
		},
		{
			tag: "rabbitmq", displayName: "RabbitMQ", image: "docker.io/library/rabbitmq:3-management-alpine",
			port: 5672, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"RABBITMQ_DEFAULT_USER": s.Username, "RABBITMQ_DEFAULT_PASS": s.Password}
			},
			healthProbe: func(i *types.Instance) Command { return Command{Path: "rabbitmq-diagnostics", Args: []string{"check_running"}} },
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "rabbitmqctl", Args: []string{"change_password", i.Username, pw}}
			},
			supports:    Supports{Users: true, ReadOnlyRootfs: true},
		},
		{
			tag: "kafka", displayName: "Kafka", image: "docker.io/apache/kafka:3.8.0",
			port: 9092,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "kafka-broker-api-versions.sh", Args: []string{"--bootstrap-server", "localhost:9092"}}
			},
			supports: Supports{ReadOnlyRootfs: true},
		},
		{
			tag: "scylladb", displayName: "ScyllaDB", image: "docker.io/scylladb/scylla:5.4",
			port: 9042, schemeWithAuth: true,
			healthProbe: func(i *types.Instance) Command { return Command{Path: "nodetool", Args: []string{"status"}} },
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "nodetool", Args: []string{"snapshot", "-t", dest, i.DatabaseName}}
			},
			supports: Supports{LogicalDatabases: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "tar",
		},
		{
			tag: "mssql", displayName: "SQL Server", image: "mcr.microsoft.com/mssql/server:2022-latest",
			port: 1433, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"ACCEPT_EULA": "Y", "MSSQL_SA_PASSWORD": s.Password}
			},
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "/opt/mssql-tools/bin/sqlcmd", Args: []string{"-S", "localhost", "-U", "sa", "-P", i.Password, "-Q", "SELECT 1"}}
			},
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "/opt/mssql-tools/bin/sqlcmd", Args: []string{
					"-S", "localhost", "-U", "sa", "-P", i.Password, "-Q",
					fmt.Sprintf("BACKUP DATABASE [%s] TO DISK='%s'", i.DatabaseName, dest),
				}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "/opt/mssql-tools/bin/sqlcmd", Args: []string{
					"-S", "localhost", "-U", "sa", "-P", i.Password, "-Q",
					fmt.Sprintf("RESTORE DATABASE [%s] FROM DISK='%s' WITH REPLACE", i.DatabaseName, src),
				}}
			},
			supports: Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "bak",
			charset: credential.Charset{Lower: true, Upper: true, Digits: true, Symbols: true},
		},
		{
			tag: "oracle-xe", displayName: "Oracle XE", image: "docker.io/gvenzl/oracle-xe:21-slim",
			port: 1521, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string { return map[string]string{"ORACLE_PASSWORD": s.Password} },
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "sh", Args: []string{"-c", "echo 'SELECT 1 FROM DUAL;' | sqlplus -s system/" + i.Password}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "sh", Args: []string{"-c",
					fmt.Sprintf("echo 'ALTER USER system IDENTIFIED BY \\"%s\\";' | sqlplus -s system/%s", pw, i.Password)}}
			},
			supports: Supports{Users: true, ReadOnlyRootfs: true}, charset: credential.Charset{Lower: true, Upper: true, Digits: true},
		},
		{
			tag: "couchdb", displayName: "CouchDB", image: "docker.io/library/couchdb:3",
			port: 5984, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"COUCHDB_USER": s.Username, "COUCHDB_PASSWORD": s.Password}
			},
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "curl", Args: []string{"-u", i.Username + ":" + i.Password, "-s", "http://localhost:5984/_up"}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "curl", Args: []string{
					"-u", i.Username + ":" + i.Password, "-X", "PUT",
					"http://localhost:5984/_node/_local/_config/admins/" + i.Username,
					"-d", fmt.Sprintf("%q", pw),
				}}
			},
			supports: Supports{LogicalDatabases: true, Users: true, ReadOnlyRootfs: true},
		},
		{
			tag: "etcd", displayName: "etcd", image: "gcr.io/etcd-development/etcd:v3.5.15",
			port: 2379,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "etcdctl", Args: []string{"endpoint", "health"}}
			},
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "etcdctl", Args: []string{"snapshot", "save", dest}}
			},
			supports: Supports{Backup: true, ReadOnlyRootfs: true},
		},
		{
			tag: "minio", displayName: "MinIO", image: "docker.io/minio/minio:latest",
			port: 9000, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string {
				return map[string]string{"MINIO_ROOT_USER": s.Username, "MINIO_ROOT_PASSWORD": s.Password}
			},
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "curl", Args: []string{"-s", "http://localhost:9000/minio/health/live"}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "mc", Args: []string{"admin", "user", "add", "local", i.Username, pw}}
			},
			supports: Supports{Users: true, ReadOnlyRootfs: true}, charset: credential.Charset{Lower: true, Upper: true, Digits: true},
		},
		{
			tag: "rethinkdb", displayName: "RethinkDB", image: "docker.io/library/rethinkdb:2.4",
			port: 28015,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "sh", Args: []string{"-c", "echo 'r.db(\"test\").info()' | rethinkdb-client"}}
			},
			supports: Supports{LogicalDatabases: true, ReadOnlyRootfs: true},
		},
		{
			tag: "arangodb", displayName: "ArangoDB", image: "docker.io/arangodb/arangodb:3.12",
			port: 8529, schemeWithAuth: true,
			env: func(s *types.Instance) map[string]string { return map[string]string{"ARANGO_ROOT_PASSWORD": s.Password} },
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "curl", Args: []string{"-s", "-u", "root:" + i.Password, "http://localhost:8529/_api/version"}}
			},
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "arangodump", Args: []string{"--server.password", i.Password, "--output-directory", dest}}
			},
			restore: func(i *types.Instance, src string) Command {
				return Command{Path: "arangorestore", Args: []string{"--server.password", i.Password, "--input-directory", src}}
			},
			rotate: func(i *types.Instance, pw string) Command {
				return Command{Path: "arangosh", Args: []string{"--server.password", i.Password, "--javascript.execute-string",
					fmt.Sprintf("require('@arangodb/users').update('root', '%s');", pw)}}
			},
			supports: Supports{LogicalDatabases: true, Users: true, Backup: true, ReadOnlyRootfs: true}, snapshotExt: "dir",
		},
		{
			tag: "questdb", displayName: "QuestDB", image: "docker.io/questdb/questdb:8.1.1",
			port: 8812, schemeWithAuth: true,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "curl", Args: []string{"-s", "http://localhost:9003"}}
			},
			supports: Supports{ReadOnlyRootfs: true},
		},
		{
			tag: "victoriametrics", displayName: "VictoriaMetrics", image: "docker.io/victoriametrics/victoria-metrics:v1.102.0",
			port: 8428,
			healthProbe: func(i *types.Instance) Command {
				return Command{Path: "curl", Args: []string{"-s", "http://localhost:8428/health"}}
			},
			snapshot: func(i *types.Instance, dest string) Command {
				return Command{Path: "curl", Args: []string{"http://localhost:8428/snapshot/create"}}
			},
			supports: Supports{Backup: true, ReadOnlyRootfs: true},
		},
		{
			tag: "dragonfly", displayName: "Dragonfly", image: "docker.io/dragonflydb/dragonfly:latest",
			port: 6379, schemeWithAuth: true,
			healthProbe: func(i *types.Instance) Command { return Command{Path: "redis-cli", Args: []string{"-a", i.Password, "ping"}} },
			connString: func(i *types.Instance) string {
				return fmt.Sprintf("redis://:%s@%s:%d", i.Password, i.HostAddress, i.Port)
			},
			supports: Supports{Backup: true, ReadOnlyRootfs: true},
		},
	}

	out := make([]Adapter, 0, len(specs))
	for _, s := range specs {
		out = append(out, tableAdapter{s: s})
	}
	return out
}

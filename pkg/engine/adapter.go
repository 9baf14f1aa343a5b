// Package engine is the Engine Adapter Layer: a polymorphic abstraction
// over heterogeneous database engines encoded as a registry of
// capability bundles, not an inheritance tree. Each capability is a pure
// function (or a command descriptor) over the instance spec, so a new
// engine costs a single file.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Sentinel errors per the error taxonomy.
var (
	ErrEngineUnknown = errors.New("engine: unknown engine tag")
	ErrConfigInvalid = errors.New("engine: config template render failed")
	ErrEngineOp      = errors.New("engine: in-container operation failed")
)

// Supports names the optional capabilities an adapter declares.
type Supports struct {
	LogicalDatabases bool
	Users            bool
	Backup           bool
	Embedded         bool

	// ReadOnlyRootfs declares that the engine's image never writes
	// outside its mounted data directory plus /tmp and /run, so the
	// orchestrator can run its container with a read-only rootfs.
	// Meaningless when Embedded is true (no container at all).
	ReadOnlyRootfs bool
}

// Command is an argv-style command descriptor to run inside a container,
// never through a shell, so arguments never need shell-escaping.
type Command struct {
	Path string
	Args []string
}

// MetricsQuery is one in-engine query/command whose parsed output fills
// engine-specific MetricsSample fields.
type MetricsQuery struct {
	Name    string
	Command Command
}

// TemplateData is the substitution context for RenderConfig.
type TemplateData struct {
	Instance *types.Instance
	Sku      types.Sku
}

// Adapter is the capability bundle every registered engine implements.
type Adapter interface {
	Tag() string
	DisplayName() string
	ImageReference() string
	DefaultPort() int
	ContainerEnv(spec *types.Instance) map[string]string
	RenderConfig(data TemplateData) ([]byte, error)
	ConnectionString(instance *types.Instance) string
	Supports() Supports
	SnapshotCommand(instance *types.Instance, destPath string) Command
	RestoreCommand(instance *types.Instance, sourcePath string) Command
	HealthProbeCommand(instance *types.Instance) Command
	CollectMetricsQueries(instance *types.Instance) []MetricsQuery
	// RotateCredentialsCommand alters the instance's primary user's
	// password in-engine. Only meaningful when Supports().Users is true;
	// adapters without user management return a zero Command.
	RotateCredentialsCommand(instance *types.Instance, newPassword string) Command
	CharsetConstraints() credential.Charset
	// SnapshotExt names the file extension snapshot files carry for
	// this engine (e.g. "sql", "rdb", "archive").
	SnapshotExt() string
}

// renderTemplate is the shared RenderConfig helper every adapter uses:
// text/template with sprig's function map merged in, over TemplateData.
func renderTemplate(name, tmpl string, data TemplateData) ([]byte, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: parse: %v", ErrConfigInvalid, name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %s: execute: %v", ErrConfigInvalid, name, err)
	}
	return buf.Bytes(), nil
}

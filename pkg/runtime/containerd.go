// Package runtime is the Container Orchestrator: a thin, opinionated
// wrapper over containerd that creates, supervises and tears down the
// containers backing database instances, with security hardening
// applied unconditionally rather than left to caller discretion.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/dbaasd/pkg/engine"
	"github.com/cuemby/dbaasd/pkg/log"
	"github.com/cuemby/dbaasd/pkg/types"
)

const (
	// Namespace is the containerd namespace every dbaasd-managed
	// container lives in, isolating it from other containerd clients on
	// the same host.
	Namespace = "dbaasd"

	// DefaultSocketPath is the default containerd socket path.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// defaultPidsLimit bounds the number of processes a database
	// container can fork, a cheap defense against fork bombs inside a
	// compromised or misbehaving engine image.
	defaultPidsLimit = 512
)

// ContainerSpec is everything the orchestrator needs to create a
// container for one instance; engine-specific parts (image, env,
// config file) come from the engine adapter, resource limits from the
// SKU.
type ContainerSpec struct {
	ID             string
	Image          string
	Env            map[string]string
	Mounts         []specs.Mount
	CPUShares      int
	MemoryLimitMB  int
	PidsLimit      int64
	ReadOnlyRootfs bool
}

// Orchestrator manages the lifecycle of containerd containers backing
// database instances.
type Orchestrator struct {
	client    *containerd.Client
	namespace string
	cache     *metadataCache
}

// New connects to containerd at socketPath and opens the runtime
// metadata cache under cacheDir.
func New(socketPath, cacheDir string) (*Orchestrator, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: connect to containerd at %s: %w", socketPath, err)
	}

	cache, err := openMetadataCache(cacheDir)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("runtime: open metadata cache: %w", err)
	}

	return &Orchestrator{client: client, namespace: Namespace, cache: cache}, nil
}

// Close releases the containerd client and metadata cache.
func (o *Orchestrator) Close() error {
	if o.cache != nil {
		o.cache.Close()
	}
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

func (o *Orchestrator) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, o.namespace)
}

// PullImage pulls imageRef if not already present locally.
func (o *Orchestrator) PullImage(ctx context.Context, imageRef string) error {
	ctx = o.ctx(ctx)
	if _, err := o.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("runtime: pull image %s: %w", imageRef, err)
	}
	return nil
}

// hardeningOpts are applied to every container regardless of engine or
// caller input: no-new-privileges, a dropped capability set, and a
// pids limit. These are not configurable by the caller.
func hardeningOpts(pidsLimit int64) []oci.SpecOpts {
	if pidsLimit <= 0 {
		pidsLimit = defaultPidsLimit
	}
	return []oci.SpecOpts{
		oci.WithNoNewPrivileges,
		oci.WithCapabilities(nil), // drop all capabilities; engines run as their image's default user
		oci.WithPidsLimit(pidsLimit),
	}
}

// Create creates (but does not start) a container from spec. It does
// not pull: spec.Image must already be in the image store (see
// PullImage).
func (o *Orchestrator) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	ctx = o.ctx(ctx)

	image, err := o.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", fmt.Errorf("runtime: get image %s: %w", spec.Image, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	opts = append(opts, hardeningOpts(spec.PidsLimit)...)

	if spec.ReadOnlyRootfs {
		opts = append(opts, oci.WithRootFSReadonly())
	}
	if len(spec.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(spec.Mounts))
	}
	if spec.CPUShares > 0 {
		opts = append(opts, oci.WithCPUShares(uint64(spec.CPUShares)))
	}
	if spec.MemoryLimitMB > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.MemoryLimitMB)*1024*1024))
	}

	container, err := o.client.NewContainer(
		ctx, spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("runtime: create container %s: %w", spec.ID, err)
	}

	if err := o.cache.put(spec.ID, containerMeta{Image: spec.Image, CreatedAt: time.Now()}); err != nil {
		log.WithComponent("runtime").Warn().Err(err).Str("container_id", spec.ID).Msg("failed to write metadata cache entry")
	}

	return container.ID(), nil
}

// Start starts the task for an already-created container, capturing
// its stdout/stderr to the metadata cache's per-container log file.
func (o *Orchestrator) Start(ctx context.Context, containerID string) error {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	logPath := o.cache.logPath(containerID)
	if err := ensureLogDir(logPath); err != nil {
		return fmt.Errorf("runtime: prepare log dir for %s: %w", containerID, err)
	}

	task, err := container.NewTask(ctx, cio.LogFile(logPath))
	if err != nil {
		return fmt.Errorf("runtime: create task for %s: %w", containerID, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("runtime: start task for %s: %w", containerID, err)
	}
	return nil
}

// Stop sends SIGTERM and waits up to timeout before escalating to
// SIGKILL, then deletes the task (the container record survives).
func (o *Orchestrator) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task: already stopped
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("runtime: SIGTERM %s: %w", containerID, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("runtime: wait for %s: %w", containerID, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("runtime: SIGKILL %s: %w", containerID, err)
		}
		<-statusC
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("runtime: delete task for %s: %w", containerID, err)
	}
	return nil
}

// Kill sends SIGKILL immediately, no grace period.
func (o *Orchestrator) Kill(ctx context.Context, containerID string) error {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}
	if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
		return fmt.Errorf("runtime: kill %s: %w", containerID, err)
	}
	return nil
}

// Remove stops the container if running, deletes it and its snapshot.
func (o *Orchestrator) Remove(ctx context.Context, containerID string) error {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil // already gone
	}

	if err := o.Stop(ctx, containerID, 10*time.Second); err != nil {
		log.WithComponent("runtime").Warn().Err(err).Str("container_id", containerID).Msg("stop before remove failed, removing anyway")
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("runtime: delete container %s: %w", containerID, err)
	}
	o.cache.delete(containerID)
	return nil
}

// Status reports the coarse running state of a container's task.
func (o *Orchestrator) Status(ctx context.Context, containerID string) (types.InstanceStatus, error) {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.InstanceStatusFailed, fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.InstanceStatusStopped, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.InstanceStatusFailed, fmt.Errorf("runtime: task status for %s: %w", containerID, err)
	}

	switch status.Status {
	case containerd.Running:
		return types.InstanceStatusRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.InstanceStatusStopped, nil
		}
		return types.InstanceStatusFailed, nil
	default:
		return types.InstanceStatusStarting, nil
	}
}

// Inspect returns a low-level view of the container for the API's
// inspect operation.
func (o *Orchestrator) Inspect(ctx context.Context, containerID string) (*types.Inspect, error) {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}

	info, err := container.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: container info for %s: %w", containerID, err)
	}

	result := &types.Inspect{
		ContainerID: containerID,
		Image:       info.Image,
		Labels:      info.Labels,
		State:       "created",
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return result, nil
	}

	result.Pid = int(task.Pid())
	status, err := task.Status(ctx)
	if err == nil {
		result.State = string(status.Status)
	}
	return result, nil
}

// Stats returns a point-in-time resource usage snapshot for the
// container's task.
func (o *Orchestrator) Stats(ctx context.Context, containerID string) (*types.Stats, error) {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: task for %s: %w", containerID, err)
	}

	metric, err := task.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: read metrics for %s: %w", containerID, err)
	}

	return statsFromMetric(metric)
}

// Exec runs cmd inside the container's namespace and returns captured
// stdout followed by stderr, and the process exit code. Used by the Snapshot Service and
// Health Monitor to run an engine-native command inside the
// container's namespaces via a real containerd task.Exec call.
func (o *Orchestrator) Exec(ctx context.Context, containerID string, cmd engine.Command, timeout time.Duration) ([]byte, int, error) {
	ctx = o.ctx(ctx)
	container, err := o.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: task for %s: %w", containerID, err)
	}

	spec, err := container.Spec(ctx)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: container spec for %s: %w", containerID, err)
	}

	procSpec := spec.Process
	procSpec.Args = append([]string{cmd.Path}, cmd.Args...)
	procSpec.Terminal = false

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	process, err := task.Exec(execCtx, execID(containerID), procSpec, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: exec in %s: %w", containerID, err)
	}
	defer process.Delete(ctx)

	statusC, err := process.Wait(execCtx)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: wait for exec in %s: %w", containerID, err)
	}

	if err := process.Start(execCtx); err != nil {
		return nil, -1, fmt.Errorf("runtime: start exec in %s: %w", containerID, err)
	}

	select {
	case status := <-statusC:
		out := append([]byte{}, stdout.Bytes()...)
		out = append(out, stderr.Bytes()...)
		return out, int(status.ExitCode()), nil
	case <-execCtx.Done():
		process.Kill(ctx, syscall.SIGKILL)
		return stdout.Bytes(), -1, fmt.Errorf("runtime: exec in %s: %w", containerID, execCtx.Err())
	}
}

// Logs streams container stdout/stderr captured by the task's cio into
// a ReadCloser of combined output.
func (o *Orchestrator) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	path := o.cache.logPath(containerID)
	return openLogFile(path)
}

func execID(containerID string) string {
	return fmt.Sprintf("%s-exec-%d", containerID, time.Now().UnixNano())
}

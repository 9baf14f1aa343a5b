// Package runtime is the Container Orchestrator layer: create, start,
// stop, remove, inspect, and exec into containerd-managed containers,
// with cap-drop/no-new-privileges/pids-limit hardening applied to
// every container unconditionally. A small bbolt-backed metadata cache
// under <root>/containers/ supplements the Persistence Store with
// runtime-only details (image reference, log file path); it is
// disposable and never authoritative over instance state.
package runtime

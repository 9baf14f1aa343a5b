/*
Package log provides structured logging for the control plane using
zerolog.

Init(cfg) configures the global Logger (JSON or console output, level
from Config.Level). Component packages pull a scoped child logger via
WithComponent("lifecycle"), WithInstanceID(id), or WithSnapshotID(id)
rather than writing to Logger directly, so every line carries enough
context to grep by instance across a busy host.
*/
package log

// Package volume is the Volume Service: per-instance data directories
// under <root>/volumes/<instance_id>/, created at instance creation
// and removed at destroy.
package volume

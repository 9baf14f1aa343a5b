// Package volume is the Volume Service: one directory per instance
// under <root>/volumes/<instance_id>/, bind-mounted into the engine's
// container as its data directory.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

// Service provisions and tears down per-instance data directories.
// The Create/Delete contract is keyed by instance ID rather than a
// generic volume ID, since this control plane only ever needs the one
// local-disk driver.
type Service struct {
	basePath string
}

// New creates a Service rooted at basePath (typically
// <root>/volumes), creating the directory if absent.
func New(basePath string) (*Service, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("volume: create base directory %s: %w", basePath, err)
	}
	return &Service{basePath: basePath}, nil
}

// Path returns the directory an instance's volume lives at, whether or
// not it has been created yet.
func (s *Service) Path(instanceID int64) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%d", instanceID))
}

// Create provisions the data directory for instanceID and returns its
// path. Idempotent: an already-existing directory is left as-is.
func (s *Service) Create(instanceID int64) (string, error) {
	path := s.Path(instanceID)
	if err := os.MkdirAll(path, 0700); err != nil {
		return "", fmt.Errorf("volume: create volume for instance %d: %w", instanceID, err)
	}
	return path, nil
}

// Delete removes an instance's data directory and everything in it.
// Once destroyed the path is never reused — the Lifecycle Manager
// guarantees this by never re-provisioning onto a previously-destroyed
// instance's id.
func (s *Service) Delete(instanceID int64) error {
	path := s.Path(instanceID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("volume: delete volume for instance %d: %w", instanceID, err)
	}
	return nil
}

// Exists reports whether instanceID's data directory is present,
// used by crash recovery to detect a volume orphaned by a create that
// never completed.
func (s *Service) Exists(instanceID int64) bool {
	_, err := os.Stat(s.Path(instanceID))
	return err == nil
}

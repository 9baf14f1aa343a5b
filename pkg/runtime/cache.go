package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketContainers = []byte("containers")

// containerMeta is the non-authoritative runtime-side record kept
// alongside the Persistence Store's instance row: useful for crash
// diagnostics and the log file path, never consulted to decide
// instance state (the Persistence Store's status column is
// authoritative; this cache can be deleted and rebuilt from
// containerd's own state without data loss).
type containerMeta struct {
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

// metadataCache is a small bbolt-backed side table under
// <root>/containers/, one bucket keyed by container ID.
type metadataCache struct {
	db      *bolt.DB
	logsDir string
}

func openMetadataCache(dir string) (*metadataCache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	db, err := bolt.Open(filepath.Join(dir, "containers.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open containers.db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContainers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &metadataCache{db: db, logsDir: filepath.Join(dir, "logs")}, nil
}

func (c *metadataCache) Close() error { return c.db.Close() }

func (c *metadataCache) put(containerID string, meta containerMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Put([]byte(containerID), data)
	})
}

func (c *metadataCache) get(containerID string) (containerMeta, bool) {
	var meta containerMeta
	var found bool
	c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContainers).Get([]byte(containerID))
		if data == nil {
			return nil
		}
		found = json.Unmarshal(data, &meta) == nil
		return nil
	})
	return meta, found
}

func (c *metadataCache) delete(containerID string) {
	c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Delete([]byte(containerID))
	})
}

func (c *metadataCache) logPath(containerID string) string {
	return filepath.Join(c.logsDir, containerID+".log")
}

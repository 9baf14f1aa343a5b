package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/dbaasd/pkg/types"
)

// Registry is the tag-keyed adapter table, built once at startup and
// read-only thereafter — the same immutable-after-init shape as the SKU
// catalog.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry. Use RegisterDefaults to
// populate it with the built-in engine set.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Tag(). Intended to be called
// during startup wiring only; the registry is read-only after that by
// convention (callers must not call Register concurrently with Lookup
// once the daemon is serving requests).
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Tag()] = a
}

// Lookup returns the adapter for tag, or ErrEngineUnknown.
func (r *Registry) Lookup(tag string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineUnknown, tag)
	}
	return a, nil
}

// List returns EngineInfo for every registered adapter, sorted by tag.
func (r *Registry) List() []types.EngineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.EngineInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		s := a.Supports()
		out = append(out, types.EngineInfo{
			Tag:             a.Tag(),
			DisplayName:     a.DisplayName(),
			DefaultPort:     a.DefaultPort(),
			SupportsBackup:  s.Backup,
			SupportsUsers:   s.Users,
			SupportsLogical: s.LogicalDatabases,
			Embedded:        s.Embedded,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// RegisterDefaults wires the full built-in engine set into r.
func RegisterDefaults(r *Registry) {
	for _, a := range []Adapter{
		newPostgreSQLAdapter(),
		newMySQLAdapter("mysql", "MySQL", "mysql:8"),
		newMySQLAdapter("mariadb", "MariaDB", "mariadb:11"),
		newRedisAdapter(),
		newMongoDBAdapter(),
		newClickHouseAdapter(),
		newCassandraAdapter(),
		newElasticsearchAdapter(),
		newSQLiteAdapter(),
	} {
		r.Register(a)
	}
	for _, a := range simpleAdapters() {
		r.Register(a)
	}
}

// Package sku is the static SKU catalog: a table mapping tier id to
// memory, CPU, storage, and scheduling hints. Built once at startup and
// treated as immutable afterwards.
package sku

import (
	"fmt"

	"github.com/cuemby/dbaasd/pkg/types"
)

// series fixes CPU shares, swappiness, and OOM score adjustment per the
// SKU catalog table.
type series struct {
	cpuShares   int
	swappiness  *int
	oomScoreAdj int
}

func intPtr(v int) *int { return &v }

var seriesTable = map[string]series{
	"B": {cpuShares: 512, swappiness: nil, oomScoreAdj: 0},
	"D": {cpuShares: 1024, swappiness: nil, oomScoreAdj: 0},
	"E": {cpuShares: 1024, swappiness: intPtr(0), oomScoreAdj: -500},
	"F": {cpuShares: 2048, swappiness: intPtr(0), oomScoreAdj: 0},
}

// sizeTable maps a numeric suffix to (memory_mb, vcpu, storage_gb).
var sizeTable = map[int]struct {
	memoryMB  int
	vcpu      float64
	storageGB int
}{
	1:  {1024, 1, 10},
	2:  {4096, 2, 50},
	4:  {8192, 4, 100},
	8:  {16384, 8, 200},
	16: {32768, 16, 400},
	32: {65536, 32, 800},
	64: {131072, 64, 1600},
}

// Catalog is the in-memory, read-only registry of Skus, built once at
// startup from seriesTable x sizeTable.
type Catalog struct {
	skus map[string]types.Sku
}

// NewCatalog builds the full B/D/E/F x {1,2,4,8,16,32,64} catalog.
func NewCatalog() *Catalog {
	c := &Catalog{skus: make(map[string]types.Sku)}
	for s, sr := range seriesTable {
		for size, dims := range sizeTable {
			id := fmt.Sprintf("%s%d", s, size)
			c.skus[id] = types.Sku{
				ID:          id,
				Series:      s,
				MemoryMB:    dims.memoryMB,
				VCPU:        dims.vcpu,
				StorageGB:   dims.storageGB,
				CPUShares:   sr.cpuShares,
				Swappiness:  sr.swappiness,
				OOMScoreAdj: sr.oomScoreAdj,
			}
		}
	}
	return c
}

// Lookup returns the Sku for id. "custom" is accepted and synthesized
// from the caller-supplied resource fields by the lifecycle manager, not
// looked up here.
func (c *Catalog) Lookup(id string) (types.Sku, bool) {
	s, ok := c.skus[id]
	return s, ok
}

// Custom builds a Sku record for a user-specified "custom" tier,
// inheriting the D-series scheduling hints (balanced baseline) since a
// custom request names no series.
func (c *Catalog) Custom(memoryMB int, vcpu float64, storageGB int) types.Sku {
	sr := seriesTable["D"]
	return types.Sku{
		ID:          "custom",
		Series:      "D",
		MemoryMB:    memoryMB,
		VCPU:        vcpu,
		StorageGB:   storageGB,
		CPUShares:   sr.cpuShares,
		Swappiness:  sr.swappiness,
		OOMScoreAdj: sr.oomScoreAdj,
		Custom:      true,
	}
}

// List returns every registered Sku, order unspecified.
func (c *Catalog) List() []types.Sku {
	out := make([]types.Sku, 0, len(c.skus))
	for _, s := range c.skus {
		out = append(out, s)
	}
	return out
}

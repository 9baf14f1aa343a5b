package sku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookupD2(t *testing.T) {
	c := NewCatalog()
	s, ok := c.Lookup("D2")
	require.True(t, ok)
	assert.Equal(t, 4096, s.MemoryMB)
	assert.Equal(t, 2.0, s.VCPU)
	assert.Equal(t, 50, s.StorageGB)
	assert.Equal(t, 1024, s.CPUShares)
	assert.Nil(t, s.Swappiness)
}

func TestCatalogLookupESeriesTunesForMemory(t *testing.T) {
	c := NewCatalog()
	s, ok := c.Lookup("E4")
	require.True(t, ok)
	require.NotNil(t, s.Swappiness)
	assert.Equal(t, 0, *s.Swappiness)
	assert.Equal(t, -500, s.OOMScoreAdj)
}

func TestCatalogLookupUnknown(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Lookup("Z99")
	assert.False(t, ok)
}

func TestCatalogCustom(t *testing.T) {
	c := NewCatalog()
	s := c.Custom(2048, 1.5, 20)
	assert.True(t, s.Custom)
	assert.Equal(t, "custom", s.ID)
	assert.Equal(t, 2048, s.MemoryMB)
}

func TestCatalogListCoversAllSeries(t *testing.T) {
	c := NewCatalog()
	list := c.List()
	assert.Len(t, list, 4*7)
}

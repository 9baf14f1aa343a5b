package vnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsUsableAddress(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("default", "10.88.0.0/29"))

	ip, err := a.Allocate("default", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, ip)
	assert.NotEqual(t, "10.88.0.0", ip, "network address should not be allocated")
}

func TestAllocateDoesNotReuseAddresses(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("default", "10.88.0.0/29"))

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ip, err := a.Allocate("default", int64(i))
		require.NoError(t, err)
		assert.False(t, seen[ip], "ip %s allocated twice", ip)
		seen[ip] = true
	}
}

func TestAllocatePoolExhausted(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("tiny", "10.88.1.0/30"))

	// /30 has 2 usable host addresses after excluding network+broadcast.
	_, err := a.Allocate("tiny", 1)
	require.NoError(t, err)
	_, err = a.Allocate("tiny", 2)
	require.NoError(t, err)

	_, err = a.Allocate("tiny", 3)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestReleaseAllowsReallocation(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("tiny", "10.88.2.0/30"))

	ip, err := a.Allocate("tiny", 1)
	require.NoError(t, err)

	require.NoError(t, a.Release("tiny", ip))

	owner, ok := a.Owner("tiny", ip)
	assert.False(t, ok)
	assert.Zero(t, owner)

	_, err = a.Allocate("tiny", 2)
	require.NoError(t, err)
}

func TestAllocateUnknownNetwork(t *testing.T) {
	a := New()
	_, err := a.Allocate("missing", 1)
	assert.ErrorIs(t, err, ErrNetworkUnknown)
}

func TestReserveReplaysAllocationAcrossRestart(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("default", "10.88.3.0/24"))
	require.NoError(t, a.Reserve("default", "10.88.3.5", 9))

	owner, ok := a.Owner("default", "10.88.3.5")
	require.True(t, ok)
	assert.EqualValues(t, 9, owner)

	_, err := a.Allocate("default", 10)
	require.NoError(t, err)
}

func TestDefineNetworkRejectsCIDRChange(t *testing.T) {
	a := New()
	require.NoError(t, a.DefineNetwork("default", "10.88.0.0/24"))
	err := a.DefineNetwork("default", "10.89.0.0/24")
	assert.Error(t, err)
}

// Package vnet is the VNet Allocator: reserves and releases IPs on
// named host-local virtual networks, one address pool per network,
// all guarded by a single mutex.
package vnet

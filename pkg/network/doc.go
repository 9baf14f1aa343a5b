// Package network publishes the single host_ip:host_port -> vnet_ip:port
// mapping each instance needs, via iptables DNAT/MASQUERADE/FORWARD
// rules. An instance exposes exactly one engine port, so the tracking
// map is instanceID -> single Publication rather than a per-task slice
// of mappings.
package network

// Package api is the Public API Surface of the control plane: the
// Go-level resource operations over instances, snapshots, metrics and
// credentials, plus a reference net/http handler (http.go) routed with
// chi and fronted by a host-supplied permission predicate. It never
// implements authentication or authorization itself — see
// PermissionCheck.
package api

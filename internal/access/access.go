// Package access wraps the authorization collaborator behind boolean checks.
// A Gate is request-scoped: authorization state is re-evaluated on every
// request and never cached across requests.
package access

import "github.com/wheelhub/wheelhub/internal/index"

// Permission names understood by the backend.
const (
	PermRead  = "read"
	PermWrite = "write"
)

// Backend is the boundary to the user-management collaborator.
type Backend interface {
	// Verify reports whether the username/password pair is valid.
	Verify(username, password string) bool

	// HasPermission reports whether the user holds the permission on the
	// project. The empty username denotes an anonymous caller.
	HasPermission(username, project, perm string) bool

	// CanUpdateCache reports whether the user may trigger cache-fill of
	// upstream packages.
	CanUpdateCache(username string) bool
}

// Gate binds a backend to one request's caller identity.
type Gate struct {
	backend  Backend
	username string
}

// NewGate builds a request-scoped gate. An empty username is an anonymous
// caller.
func NewGate(backend Backend, username string) Gate {
	return Gate{backend: backend, username: username}
}

// Username returns the caller identity, empty for anonymous callers.
func (g Gate) Username() string {
	return g.username
}

// Authenticated reports whether the request carries a verified identity.
func (g Gate) Authenticated() bool {
	return g.username != ""
}

// CanRead reports read permission on a project.
func (g Gate) CanRead(project string) bool {
	return g.backend.HasPermission(g.username, index.NormalizeName(project), PermRead)
}

// CanWrite reports write permission on a project.
func (g Gate) CanWrite(project string) bool {
	return g.backend.HasPermission(g.username, index.NormalizeName(project), PermWrite)
}

// CanUpdateCache reports whether the caller may trigger cache-fill.
func (g Gate) CanUpdateCache() bool {
	return g.backend.CanUpdateCache(g.username)
}

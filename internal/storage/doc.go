// Package storage derives canonical object-store keys for packages and
// exposes the capability interface the resolution engine and the cache
// orchestrator depend on. Two backends are provided: a filesystem store with
// atomic writes, and an HTTP object store producing time-limited signed URLs.
package storage

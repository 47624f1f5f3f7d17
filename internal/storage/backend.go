package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wheelhub/wheelhub/internal/index"
)

// ErrNotFound reports a missing stored object.
var ErrNotFound = errors.New("stored object not found")

// ErrNoSignedURLs reports a backend that cannot mint signed URLs.
var ErrNoSignedURLs = errors.New("backend does not support signed URLs")

// Backend is the capability interface over a concrete object store. The
// resolution engine and the cache orchestrator depend only on this interface.
type Backend interface {
	// Keys exposes the key resolver this backend stores objects under.
	Keys() KeyResolver

	// SignedURL returns a time-limited URL for direct client download.
	SignedURL(pkg *index.Package) (string, error)

	// Put writes the artifact bytes under the package's storage key.
	Put(ctx context.Context, pkg *index.Package, body io.Reader) error

	// Open returns a stream of the stored artifact bytes. The caller must
	// close it on every exit path.
	Open(ctx context.Context, pkg *index.Package) (io.ReadCloser, error)

	// Delete removes the stored object.
	Delete(ctx context.Context, pkg *index.Package) error
}

// Loader is implemented by backends able to enumerate their stored objects,
// used to rebuild package metadata from storage at startup. Records are
// returned general-prefix area first, then upload area, so re-listed objects
// residing under the upload prefix win with origin upload.
type Loader interface {
	LoadAll(ctx context.Context) ([]*index.Package, error)
}

// StoredObject carries the storage-level facts needed to rebuild a package
// record from a stored object.
type StoredObject struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// FromStoredObject rebuilds a package record from one stored object using the
// key layout. Returns nil for keys outside the configured layout.
func FromStoredObject(keys KeyResolver, obj StoredObject, version func(name, filename string) string) *index.Package {
	name, filename, origin, ok := keys.Parse(obj.Key)
	if !ok {
		return nil
	}
	pkg := &index.Package{
		Name:         index.NormalizeName(name),
		Filename:     filename,
		Origin:       origin,
		LastModified: obj.ModTime,
	}
	if version != nil {
		pkg.Version = version(pkg.Name, filename)
	}
	pkg.SetStorageKey(obj.Key)
	return pkg
}

package storage

import "github.com/wheelhub/wheelhub/internal/index"

// URLResolver decides what URL a package listing entry carries: a signed URL
// straight to the object store, or the proxy-relative download path that
// streams (or redirects) through this service.
type URLResolver struct {
	backend  Backend
	redirect bool
}

// NewURLResolver builds a resolver. redirect should only be enabled for
// backends that can mint signed URLs.
func NewURLResolver(backend Backend, redirect bool) URLResolver {
	return URLResolver{backend: backend, redirect: redirect}
}

// Resolve returns the listing URL for a package. Store-level signing errors
// surface unmodified; there is no retry at this layer.
func (r URLResolver) Resolve(pkg *index.Package) (string, error) {
	if r.redirect {
		return r.backend.SignedURL(pkg)
	}
	return DownloadPath(pkg.Name, pkg.Filename), nil
}

// DownloadPath is the proxy-relative download endpoint for an artifact.
func DownloadPath(name, filename string) string {
	return "/api/package/" + name + "/" + filename
}

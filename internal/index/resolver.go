package index

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/fallback"
)

// Gate carries the caller's request-scoped authorization decisions.
type Gate interface {
	Authenticated() bool
	CanRead(project string) bool
	CanUpdateCache() bool
}

// Gateway queries the upstream index for a project's releases.
type Gateway interface {
	Releases(ctx context.Context, project string, collapse bool, canRead func(string) bool) (map[string]fallback.Entry, error)
}

// URLSource resolves the listing URL of a locally stored package.
type URLSource interface {
	Resolve(pkg *Package) (string, error)
}

// Resolver merges local package metadata with upstream releases under the
// configured fallback policy and the caller's permissions.
type Resolver struct {
	store   Store
	urls    URLSource
	gateway Gateway
	policy  config.GlobalConfig
	logger  *logrus.Logger
}

// NewResolver wires the resolution engine. The policy is read-only for the
// life of the process.
func NewResolver(store Store, urls URLSource, gateway Gateway, policy config.GlobalConfig, logger *logrus.Logger) *Resolver {
	return &Resolver{
		store:   store,
		urls:    urls,
		gateway: gateway,
		policy:  policy,
		logger:  logger,
	}
}

// Listing resolves the human-readable listing for a project.
func (r *Resolver) Listing(ctx context.Context, project string, gate Gate) (Result, error) {
	return r.resolve(ctx, project, gate, r.policy.FallbackProjectURL(project), r.buildListing)
}

// ReleasesJSON resolves the machine-readable listing. Redirects target a
// base-relative path when FallbackBaseURL is configured.
func (r *Resolver) ReleasesJSON(ctx context.Context, project string, gate Gate, requestPath string) (Result, error) {
	location := r.policy.FallbackProjectURL(project)
	if base := r.policy.FallbackBaseURL; base != "" {
		location = strings.TrimRight(base, "/") + requestPath
	}
	return r.resolve(ctx, project, gate, location, r.buildReleases)
}

// Projects lists the distinct project names the caller may read.
func (r *Resolver) Projects(ctx context.Context, gate Gate) ([]string, error) {
	names, err := r.store.Distinct(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]string, 0, len(names))
	for _, name := range names {
		if gate.CanRead(name) {
			visible = append(visible, name)
		}
	}
	return visible, nil
}

// payloadFunc shapes local packages plus merged upstream entries into one of
// the two listing payloads.
type payloadFunc func(packages []*Package, entries map[string]fallback.Entry) (Result, error)

// resolve is the policy state machine shared by both listing variants. The
// decision depends on fallback mode, AlwaysShowUpstream, whether local
// packages exist, and the caller's authentication and permission state.
func (r *Resolver) resolve(ctx context.Context, project string, gate Gate, location string, build payloadFunc) (Result, error) {
	name := NormalizeName(project)

	packages, err := r.store.All(ctx, name)
	if err != nil {
		return Result{}, err
	}

	if len(packages) > 0 {
		if gate.CanRead(name) {
			if !r.policy.FallbackEnabled() || !r.policy.AlwaysShowUpstream {
				return build(packages, nil)
			}
			// Cache-updaters get upstream entries collapsed onto the
			// local download route. Other callers must at least be
			// authenticated and see the literal upstream URLs.
			if !gate.CanUpdateCache() && !gate.Authenticated() {
				return Result{Action: ActionAuthRequired}, nil
			}
			collapse := r.policy.Fallback == config.FallbackCache && gate.CanUpdateCache()
			entries, err := r.gateway.Releases(ctx, project, collapse, gate.CanRead)
			if err != nil {
				return Result{}, err
			}
			return build(packages, entries)
		}

		// The caller may not read this project. Anonymous callers get an
		// auth challenge so nothing about package existence leaks.
		if !gate.Authenticated() {
			return Result{Action: ActionAuthRequired}, nil
		}
		switch {
		case r.policy.Fallback == config.FallbackRedirect:
			return redirectTo(location), nil
		case r.policy.Fallback == config.FallbackCache && r.policy.AlwaysShowUpstream:
			return redirectTo(location), nil
		default:
			return Result{Action: ActionNotFound}, nil
		}
	}

	// No local packages.
	switch r.policy.Fallback {
	case config.FallbackRedirect:
		return redirectTo(location), nil

	case config.FallbackCache:
		if gate.CanUpdateCache() {
			// Listing only: nothing is persisted until an actual download.
			entries, err := r.gateway.Releases(ctx, project, true, gate.CanRead)
			if err != nil {
				return Result{}, err
			}
			return build(nil, entries)
		}
		if !gate.Authenticated() {
			return Result{Action: ActionAuthRequired}, nil
		}
		if r.policy.AlwaysShowUpstream {
			return redirectTo(location), nil
		}
		return Result{Action: ActionNotFound}, nil

	default:
		if !gate.CanRead(name) && !gate.Authenticated() {
			return Result{Action: ActionAuthRequired}, nil
		}
		return Result{Action: ActionNotFound}, nil
	}
}

// buildListing produces the filename-keyed listing map. Local packages are
// inserted first so local data always wins on filename collision.
func (r *Resolver) buildListing(packages []*Package, entries map[string]fallback.Entry) (Result, error) {
	listing := make(map[string]ListingEntry, len(packages)+len(entries))
	for _, pkg := range packages {
		url, err := r.urls.Resolve(pkg)
		if err != nil {
			return Result{}, err
		}
		listing[pkg.Filename] = ListingEntry{
			URL:            url,
			RequiresPython: optional(pkg.RequiresPython),
			HashSHA256:     optional(pkg.HashSHA256),
			HashMD5:        optional(pkg.HashMD5),
			NonHashedURL:   url,
		}
	}
	for filename, entry := range entries {
		if _, exists := listing[filename]; exists {
			continue
		}
		listing[filename] = ListingEntry{
			URL:            entry.URL,
			RequiresPython: optional(entry.RequiresPython),
			HashSHA256:     optional(entry.HashSHA256),
			HashMD5:        optional(entry.HashMD5),
		}
	}
	return serveListing(listing), nil
}

// buildReleases groups entries by version for the machine-readable variant.
func (r *Resolver) buildReleases(packages []*Package, entries map[string]fallback.Entry) (Result, error) {
	releases := make(map[string][]ReleaseFile)
	seen := make(map[string]struct{}, len(packages))

	for _, pkg := range packages {
		url, err := r.urls.Resolve(pkg)
		if err != nil {
			return Result{}, err
		}
		file := ReleaseFile{
			Filename:       pkg.Filename,
			PackageType:    pkg.PackageType(),
			URL:            url,
			RequiresPython: optional(pkg.RequiresPython),
			Digests:        digestMap(pkg.HashSHA256, pkg.HashMD5),
			MD5Digest:      pkg.HashMD5,
		}
		releases[pkg.Version] = append(releases[pkg.Version], file)
		seen[pkg.Filename] = struct{}{}
	}

	for filename, entry := range entries {
		if _, exists := seen[filename]; exists {
			continue
		}
		file := ReleaseFile{
			Filename:       entry.Filename,
			PackageType:    (&Package{Filename: entry.Filename}).PackageType(),
			URL:            entry.URL,
			RequiresPython: optional(entry.RequiresPython),
			Digests:        digestMap(entry.HashSHA256, entry.HashMD5),
			MD5Digest:      entry.HashMD5,
		}
		releases[entry.Version] = append(releases[entry.Version], file)
	}

	return serveReleases(releases), nil
}

// digestMap builds the combined digest map, present only when any digest is
// known.
func digestMap(sha256Hash, md5Hash string) map[string]string {
	if sha256Hash == "" && md5Hash == "" {
		return nil
	}
	digests := make(map[string]string, 2)
	if sha256Hash != "" {
		digests["sha256"] = sha256Hash
	}
	if md5Hash != "" {
		digests["md5"] = md5Hash
	}
	return digests
}

// Package cachefill materializes upstream artifacts into local storage on an
// authorized download miss.
package cachefill

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/fallback"
	"github.com/wheelhub/wheelhub/internal/index"
	"github.com/wheelhub/wheelhub/internal/storage"
)

// ErrForbidden reports a caller without cache-update permission.
var ErrForbidden = errors.New("cache update not permitted")

// ErrNotFound reports that upstream has no matching release file.
var ErrNotFound = errors.New("release not found upstream")

// Gateway is the slice of the fallback gateway the orchestrator needs.
type Gateway interface {
	Releases(ctx context.Context, project string, collapse bool, canRead func(string) bool) (map[string]fallback.Entry, error)
	FetchArtifact(ctx context.Context, url string) ([]byte, error)
}

// Gate carries the caller's cache-update decision.
type Gate interface {
	CanUpdateCache() bool
}

// Orchestrator fetches a missing artifact from upstream, persists it through
// the object-store write path and registers it as a cached-origin package.
type Orchestrator struct {
	store   index.Store
	backend storage.Backend
	gateway Gateway
	logger  *logrus.Logger
}

// NewOrchestrator wires the cache-fill path.
func NewOrchestrator(store index.Store, backend storage.Backend, gateway Gateway, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		backend: backend,
		gateway: gateway,
		logger:  logger,
	}
}

// FetchAndCache retrieves the named artifact from upstream, stores it and
// returns the bytes for the in-flight response, so serving the just-cached
// content needs no second read from storage.
//
// Permission is re-checked here: a prior check from listing time is never
// trusted. Two concurrent misses for the same filename may both fetch and
// write; the object write is idempotent for identical content and a losing
// metadata save falls back to the surviving record instead of erroring.
func (o *Orchestrator) FetchAndCache(ctx context.Context, project, filename string, gate Gate) ([]byte, *index.Package, error) {
	if !gate.CanUpdateCache() {
		return nil, nil, ErrForbidden
	}

	releases, err := o.gateway.Releases(ctx, project, false, nil)
	if err != nil {
		return nil, nil, err
	}
	entry, ok := releases[filename]
	if !ok {
		return nil, nil, fmt.Errorf("%s/%s: %w", project, filename, ErrNotFound)
	}

	body, err := o.gateway.FetchArtifact(ctx, entry.UpstreamURL)
	if err != nil {
		return nil, nil, err
	}

	pkg := index.NewPackage(entry.Name, entry.Version, entry.Filename, index.OriginCache)
	pkg.Summary = entry.Summary
	pkg.RequiresPython = entry.RequiresPython
	sha256Sum := sha256.Sum256(body)
	md5Sum := md5.Sum(body)
	pkg.HashSHA256 = hex.EncodeToString(sha256Sum[:])
	pkg.HashMD5 = hex.EncodeToString(md5Sum[:])

	// The local record is created only after a successful byte fetch, and
	// the bytes are persisted before the record so a registered package
	// always has its object.
	if err := o.backend.Put(ctx, pkg, bytes.NewReader(body)); err != nil {
		return nil, nil, err
	}

	if err := o.store.Save(ctx, pkg); err != nil {
		if errors.Is(err, index.ErrDuplicate) {
			// Lost a concurrent fill race; serve the surviving record.
			existing, fetchErr := o.store.Fetch(ctx, filename)
			if fetchErr == nil && existing != nil {
				o.logger.WithFields(logrus.Fields{
					"action":   "cache_fill_race",
					"project":  project,
					"filename": filename,
				}).Info("concurrent cache fill, reusing existing record")
				return body, existing, nil
			}
		}
		return nil, nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"action":   "cache_fill",
		"project":  project,
		"filename": filename,
		"bytes":    len(body),
	}).Info("cached upstream package")

	return body, pkg, nil
}

package index

import (
	"regexp"
	"strings"
	"time"
)

// Origin records how a package entered local storage. It never changes after
// creation; a cached package that later gets uploaded becomes a new record.
type Origin string

const (
	OriginUpload Origin = "upload"
	OriginCache  Origin = "cache"
)

// Package is the identity and storage facts for one distributable artifact.
// (Name, Filename) uniquely identifies a package in the local store.
type Package struct {
	Name           string
	Version        string
	Filename       string
	Origin         Origin
	Summary        string
	RequiresPython string
	HashSHA256     string
	HashMD5        string
	LastModified   time.Time

	// storageKey is derived exactly once per record so repeated URL
	// generation never re-derives a different key for the same package.
	storageKey string
}

// NewPackage builds a local package record with a normalized name.
func NewPackage(name, version, filename string, origin Origin) *Package {
	return &Package{
		Name:         NormalizeName(name),
		Version:      version,
		Filename:     filename,
		Origin:       origin,
		LastModified: time.Now().UTC(),
	}
}

// CachedStorageKey returns the memoized storage key, if one has been set.
func (p *Package) CachedStorageKey() (string, bool) {
	return p.storageKey, p.storageKey != ""
}

// SetStorageKey memoizes the derived storage key on the owning record. The
// first value wins; later calls are ignored.
func (p *Package) SetStorageKey(key string) {
	if p.storageKey == "" {
		p.storageKey = key
	}
}

// PackageType classifies the artifact by filename for the machine-readable
// listing.
func (p *Package) PackageType() string {
	switch {
	case strings.HasSuffix(p.Filename, ".whl"):
		return "bdist_wheel"
	case strings.HasSuffix(p.Filename, ".egg"):
		return "bdist_egg"
	default:
		return "sdist"
	}
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases a project name and collapses runs of separator
// characters, so lookups are case and separator insensitive (PEP 503).
func NormalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

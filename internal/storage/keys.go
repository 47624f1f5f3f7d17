package storage

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/index"
)

// KeyResolver derives the canonical storage key of a package:
//
//	[<upload-or-bucket-prefix>/][<4-hex-prefix>/]<name>/<filename>
//
// The key is a pure function of the filename, the hashing configuration and
// the origin-dependent prefix choice, so it stays stable across restarts.
type KeyResolver struct {
	// Prefix is the general bucket prefix; may be empty.
	Prefix string
	// UploadPrefix replaces Prefix for uploaded packages when set. The
	// configuration layer guarantees it is empty when equal to Prefix.
	UploadPrefix string
	// PrependHash adds a filename-derived 4-hex-char prefix that spreads
	// keys across storage partitions hashing on key prefix. It is not a
	// content hash.
	PrependHash bool
}

// NewKeyResolver builds a resolver from the storage configuration.
func NewKeyResolver(cfg config.StorageConfig) KeyResolver {
	return KeyResolver{
		Prefix:       cfg.Prefix,
		UploadPrefix: cfg.UploadPrefix,
		PrependHash:  cfg.PrependHash,
	}
}

// Resolve returns the storage key for a package, memoizing it on the record.
// A key already stored on the package is never recomputed: recomputation
// under changed configuration would silently corrupt lookups.
func (k KeyResolver) Resolve(pkg *index.Package) string {
	if key, ok := pkg.CachedStorageKey(); ok {
		return key
	}
	key := k.derive(pkg)
	pkg.SetStorageKey(key)
	return key
}

func (k KeyResolver) derive(pkg *index.Package) string {
	key := pkg.Name + "/" + pkg.Filename
	if k.PrependHash {
		key = hashPrefix(pkg.Filename) + "/" + key
	}
	if prefix := k.areaPrefix(pkg.Origin); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func (k KeyResolver) areaPrefix(origin index.Origin) string {
	if origin == index.OriginUpload && k.UploadPrefix != "" {
		return k.UploadPrefix
	}
	return k.Prefix
}

// hashPrefix returns the first 4 hex digits of the MD5 of the filename.
func hashPrefix(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])[:4]
}

// Parse reverses Resolve: it reconstructs identity facts from a stored key.
// The second return is false for keys that do not match the configured
// layout.
func (k KeyResolver) Parse(key string) (name, filename string, origin index.Origin, ok bool) {
	origin = index.OriginCache
	rest := key

	if k.UploadPrefix != "" {
		if trimmed, found := strings.CutPrefix(rest, k.UploadPrefix+"/"); found {
			origin = index.OriginUpload
			rest = trimmed
		} else if k.Prefix != "" {
			if trimmed, found := strings.CutPrefix(rest, k.Prefix+"/"); !found {
				return "", "", "", false
			} else {
				rest = trimmed
			}
		}
	} else if k.Prefix != "" {
		trimmed, found := strings.CutPrefix(rest, k.Prefix+"/")
		if !found {
			return "", "", "", false
		}
		rest = trimmed
	}

	parts := strings.Split(rest, "/")
	if k.PrependHash {
		if len(parts) != 3 || len(parts[0]) != 4 {
			return "", "", "", false
		}
		parts = parts[1:]
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], origin, true
}

package index

// Action is the terminal outcome of resolving a request. Translation into
// HTTP status codes happens at the route boundary only.
type Action int

const (
	ActionServe Action = iota
	ActionAuthRequired
	ActionForbidden
	ActionNotFound
	ActionRedirect
	ActionConflict
)

// ListingEntry is the per-file payload of the human-readable listing.
// NonHashedURL is served for local packages only; hashes render as null when
// unknown.
type ListingEntry struct {
	URL            string  `json:"url"`
	RequiresPython *string `json:"requires_python"`
	HashSHA256     *string `json:"hash_sha256"`
	HashMD5        *string `json:"hash_md5"`
	NonHashedURL   string  `json:"non_hashed_url,omitempty"`
}

// ReleaseFile is the per-file payload of the machine-readable listing.
// Digests appears when any digest is known; MD5Digest is the bare PEP 503
// style field kept for older clients.
type ReleaseFile struct {
	Filename       string            `json:"filename"`
	PackageType    string            `json:"packagetype"`
	URL            string            `json:"url"`
	RequiresPython *string           `json:"requires_python"`
	Digests        map[string]string `json:"digests,omitempty"`
	MD5Digest      string            `json:"md5_digest,omitempty"`
}

// Result is the discriminated outcome of the resolution engine. Exactly one
// of the payload fields is meaningful, selected by Action.
type Result struct {
	Action   Action
	Location string
	Listing  map[string]ListingEntry
	Releases map[string][]ReleaseFile
}

func serveListing(listing map[string]ListingEntry) Result {
	return Result{Action: ActionServe, Listing: listing}
}

func serveReleases(releases map[string][]ReleaseFile) Result {
	return Result{Action: ActionServe, Releases: releases}
}

func redirectTo(location string) Result {
	return Result{Action: ActionRedirect, Location: location}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

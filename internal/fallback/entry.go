package fallback

// Entry is a transient view of one upstream release file. Entries are built
// per request from the upstream index response and discarded after the
// response is serialized; only the cache orchestrator ever promotes one into
// a stored package.
type Entry struct {
	Name           string
	Version        string
	Filename       string
	Summary        string
	RequiresPython string
	HashSHA256     string
	HashMD5        string

	// URL is what gets served to clients: the literal upstream URL, or the
	// proxy-relative download path when the caller asked for collapsed URLs.
	URL string
	// UpstreamURL always carries the literal upstream location, so the cache
	// orchestrator can fetch bytes regardless of URL collapsing.
	UpstreamURL string
}

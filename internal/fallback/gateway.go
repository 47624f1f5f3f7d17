package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUpstream reports a transport-level failure talking to the upstream
// index. A project that simply does not exist upstream is not an error.
var ErrUpstream = errors.New("upstream index unavailable")

const simpleJSONContentType = "application/vnd.pypi.simple.v1+json"

// Gateway queries the upstream simple index for the releases of a project.
// It speaks both the PEP 691 JSON form and the PEP 503 HTML form.
type Gateway struct {
	client  *http.Client
	baseURL string
	logger  *logrus.Logger
}

// NewGateway builds a gateway against the upstream simple index root.
func NewGateway(client *http.Client, baseURL string, logger *logrus.Logger) *Gateway {
	return &Gateway{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Releases returns the release files upstream knows for a project, keyed by
// filename. A missing upstream project yields an empty map, not an error.
//
// When collapse is set, entry URLs are rewritten to the proxy-relative
// download path so authorization and caching decisions are deferred to the
// download endpoint instead of leaking upstream URLs. canRead, when non-nil,
// filters out entries the caller may not read.
func (g *Gateway) Releases(ctx context.Context, project string, collapse bool, canRead func(string) bool) (map[string]Entry, error) {
	project = normalizeName(project)
	pageURL := g.baseURL + "/" + project + "/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", simpleJSONContentType+", text/html;q=0.5")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return map[string]Entry{}, nil
	default:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUpstream, pageURL, err)
	}

	var entries []Entry
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		entries, err = parseSimpleJSON(project, body)
	} else {
		entries, err = parseSimpleHTML(project, pageURL, body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrUpstream, pageURL, err)
	}

	result := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		if canRead != nil && !canRead(entry.Name) {
			continue
		}
		if collapse {
			entry.URL = proxyDownloadPath(entry.Name, entry.Filename)
		}
		result[entry.Filename] = entry
	}

	g.logger.WithFields(logrus.Fields{
		"action":  "fallback_releases",
		"project": project,
		"entries": len(result),
	}).Debug("queried upstream index")

	return result, nil
}

// FetchArtifact retrieves the raw bytes of one release file from its
// upstream URL.
func (g *Gateway) FetchArtifact(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func proxyDownloadPath(name, filename string) string {
	return "/api/package/" + name + "/" + filename
}

// resolveEntryURL makes the href absolute against the index page and splits
// off the digest fragment (PEP 503 carries hashes as "#sha256=...").
func resolveEntryURL(pageURL, href string) (string, string, string) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return href, "", ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href, "", ""
	}
	abs := page.ResolveReference(ref)

	var sha256Hash, md5Hash string
	if frag := abs.Fragment; frag != "" {
		if value, ok := strings.CutPrefix(frag, "sha256="); ok {
			sha256Hash = value
		} else if value, ok := strings.CutPrefix(frag, "md5="); ok {
			md5Hash = value
		}
		abs.Fragment = ""
	}
	return abs.String(), sha256Hash, md5Hash
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

func normalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

var archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tgz", ".zip", ".whl", ".egg"}

// VersionFromFilename recovers the version segment of a release filename
// given the normalized project name. Best effort: grouping by version is
// display-level behavior, never identity.
func VersionFromFilename(project, filename string) string {
	base := path.Base(filename)
	for _, suffix := range archiveSuffixes {
		if trimmed, ok := strings.CutSuffix(base, suffix); ok {
			base = trimmed
			break
		}
	}

	parts := strings.Split(base, "-")
	if strings.HasSuffix(filename, ".whl") || strings.HasSuffix(filename, ".egg") {
		// name-version-{tags...}
		if len(parts) >= 2 {
			return parts[1]
		}
		return ""
	}

	// sdist: name-version, where the name itself may contain separators.
	for i := 1; i < len(parts); i++ {
		if normalizeName(strings.Join(parts[:i], "-")) == project {
			return strings.Join(parts[i:], "-")
		}
	}
	if len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return ""
}

package fallback

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// simpleProject is the PEP 691 JSON shape of a simple-index project page.
type simpleProject struct {
	Name  string       `json:"name"`
	Files []simpleFile `json:"files"`
}

type simpleFile struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python"`
}

func parseSimpleJSON(project string, body []byte) ([]Entry, error) {
	var page simpleProject
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(page.Files))
	for _, file := range page.Files {
		if file.Filename == "" || file.URL == "" {
			continue
		}
		entries = append(entries, Entry{
			Name:           project,
			Version:        VersionFromFilename(project, file.Filename),
			Filename:       file.Filename,
			RequiresPython: file.RequiresPython,
			HashSHA256:     file.Hashes["sha256"],
			HashMD5:        file.Hashes["md5"],
			URL:            file.URL,
			UpstreamURL:    file.URL,
		})
	}
	return entries, nil
}

func parseSimpleHTML(project, pageURL string, body []byte) ([]Entry, error) {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	collectAnchors(node, func(anchor *html.Node) {
		entry, ok := entryFromAnchor(project, pageURL, anchor)
		if ok {
			entries = append(entries, entry)
		}
	})
	return entries, nil
}

func collectAnchors(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == "a" {
		visit(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectAnchors(child, visit)
	}
}

func entryFromAnchor(project, pageURL string, anchor *html.Node) (Entry, bool) {
	var href, requiresPython string
	for _, attr := range anchor.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-requires-python":
			requiresPython = attr.Val
		}
	}
	filename := strings.TrimSpace(anchorText(anchor))
	if href == "" || filename == "" {
		return Entry{}, false
	}

	absURL, sha256Hash, md5Hash := resolveEntryURL(pageURL, href)
	return Entry{
		Name:           project,
		Version:        VersionFromFilename(project, filename),
		Filename:       filename,
		RequiresPython: requiresPython,
		HashSHA256:     sha256Hash,
		HashMD5:        md5Hash,
		URL:            absURL,
		UpstreamURL:    absURL,
	}, true
}

func anchorText(n *html.Node) string {
	var buf strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buf.WriteString(child.Data)
		}
	}
	return buf.String()
}

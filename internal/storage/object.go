package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/index"
)

// NewObjectBackend builds a backend against an S3-like HTTP object store.
// Objects live under Endpoint/<storage-key>; reads go through the same signed
// URLs handed to clients, writes are plain PUTs.
func NewObjectBackend(cfg config.StorageConfig, keys KeyResolver, client *http.Client) Backend {
	return &objectBackend{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		keys:       keys,
		client:     client,
		expiry:     cfg.SignedURLExpiry.DurationValue(),
		publicURL:  cfg.PublicURL,
		signingKey: []byte(cfg.SigningKey),
		now:        time.Now,
	}
}

type objectBackend struct {
	endpoint   string
	keys       KeyResolver
	client     *http.Client
	expiry     time.Duration
	publicURL  bool
	signingKey []byte
	now        func() time.Time
}

func (s *objectBackend) Keys() KeyResolver {
	return s.keys
}

// SignedURL mints a time-limited URL for the package's object. With
// PublicURL set the signing query parameters are omitted entirely; the
// object is expected to be world readable.
func (s *objectBackend) SignedURL(pkg *index.Package) (string, error) {
	objectURL := s.objectURL(s.keys.Resolve(pkg))
	if s.publicURL {
		return objectURL, nil
	}

	expires := s.now().Add(s.expiry).Unix()
	query := url.Values{}
	query.Set("Expires", strconv.FormatInt(expires, 10))
	query.Set("Signature", s.sign(s.keys.Resolve(pkg), expires))
	return objectURL + "?" + query.Encode(), nil
}

func (s *objectBackend) Put(ctx context.Context, pkg *index.Package, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(s.keys.Resolve(pkg)), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("object store put %s: status %d", s.keys.Resolve(pkg), resp.StatusCode)
	}
	return nil
}

// Open streams the object through the same URL generation used for client
// redirects, so access rules stay in one place.
func (s *objectBackend) Open(ctx context.Context, pkg *index.Package) (io.ReadCloser, error) {
	signed, err := s.SignedURL(pkg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("object store get %s: status %d", s.keys.Resolve(pkg), resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *objectBackend) Delete(ctx context.Context, pkg *index.Package) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(s.keys.Resolve(pkg)), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("object store delete %s: status %d", s.keys.Resolve(pkg), resp.StatusCode)
	}
	return nil
}

func (s *objectBackend) objectURL(key string) string {
	escaped := make([]string, 0, 4)
	for _, segment := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return s.endpoint + "/" + strings.Join(escaped, "/")
}

func (s *objectBackend) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

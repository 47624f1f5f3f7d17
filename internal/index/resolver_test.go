package index

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/fallback"
)

type fakeGate struct {
	auth   bool
	read   bool
	update bool
}

func (g fakeGate) Authenticated() bool { return g.auth }
func (g fakeGate) CanRead(string) bool { return g.read }
func (g fakeGate) CanUpdateCache() bool { return g.update }

type fakeGateway struct {
	entries      map[string]fallback.Entry
	called       bool
	lastCollapse bool
}

func (g *fakeGateway) Releases(_ context.Context, _ string, collapse bool, _ func(string) bool) (map[string]fallback.Entry, error) {
	g.called = true
	g.lastCollapse = collapse
	return g.entries, nil
}

type pathURLs struct{}

func (pathURLs) Resolve(pkg *Package) (string, error) {
	return "/api/package/" + pkg.Name + "/" + pkg.Filename, nil
}

func newTestResolver(t *testing.T, policy config.GlobalConfig, local []*Package, gateway *fakeGateway) *Resolver {
	t.Helper()
	store := NewMemoryStore()
	for _, pkg := range local {
		if err := store.Save(context.Background(), pkg); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolver(store, pathURLs{}, gateway, policy, logger)
}

func TestListingPolicyMatrix(t *testing.T) {
	upstream := map[string]fallback.Entry{
		"pkg-2.0.tar.gz": {Name: "pkg", Version: "2.0", Filename: "pkg-2.0.tar.gz", URL: "https://files.example.com/pkg-2.0.tar.gz"},
	}

	cases := []struct {
		name       string
		fallback   string
		alwaysShow bool
		local      bool
		gate       fakeGate

		wantAction   Action
		wantGateway  bool
		wantCollapse bool
		wantEntries  int
	}{
		{
			name:     "local readable no fallback serves local",
			fallback: config.FallbackNone, local: true,
			gate:       fakeGate{auth: true, read: true},
			wantAction: ActionServe, wantEntries: 1,
		},
		{
			name:     "local readable redirect without always-show serves local only",
			fallback: config.FallbackRedirect, local: true,
			gate:       fakeGate{read: true},
			wantAction: ActionServe, wantEntries: 1,
		},
		{
			name:     "local readable cache always-show anonymous without cache permission challenged",
			fallback: config.FallbackCache, alwaysShow: true, local: true,
			gate:       fakeGate{read: true},
			wantAction: ActionAuthRequired,
		},
		{
			name:     "local readable cache always-show anonymous cache-updater merges collapsed upstream",
			fallback: config.FallbackCache, alwaysShow: true, local: true,
			gate:       fakeGate{read: true, update: true},
			wantAction: ActionServe, wantGateway: true, wantCollapse: true, wantEntries: 2,
		},
		{
			name:     "local readable cache always-show cache-updater merges collapsed upstream",
			fallback: config.FallbackCache, alwaysShow: true, local: true,
			gate:       fakeGate{auth: true, read: true, update: true},
			wantAction: ActionServe, wantGateway: true, wantCollapse: true, wantEntries: 2,
		},
		{
			name:     "local readable cache always-show authenticated reader merges literal upstream",
			fallback: config.FallbackCache, alwaysShow: true, local: true,
			gate:       fakeGate{auth: true, read: true},
			wantAction: ActionServe, wantGateway: true, wantCollapse: false, wantEntries: 2,
		},
		{
			name:     "local readable redirect always-show merges literal upstream",
			fallback: config.FallbackRedirect, alwaysShow: true, local: true,
			gate:       fakeGate{auth: true, read: true},
			wantAction: ActionServe, wantGateway: true, wantCollapse: false, wantEntries: 2,
		},
		{
			name:     "local unreadable anonymous challenged",
			fallback: config.FallbackNone, local: true,
			gate:       fakeGate{},
			wantAction: ActionAuthRequired,
		},
		{
			name:     "local unreadable authenticated redirect mode redirects",
			fallback: config.FallbackRedirect, local: true,
			gate:       fakeGate{auth: true},
			wantAction: ActionRedirect,
		},
		{
			name:     "local unreadable authenticated cache always-show redirects",
			fallback: config.FallbackCache, alwaysShow: true, local: true,
			gate:       fakeGate{auth: true},
			wantAction: ActionRedirect,
		},
		{
			name:     "local unreadable authenticated cache hidden not found",
			fallback: config.FallbackCache, local: true,
			gate:       fakeGate{auth: true},
			wantAction: ActionNotFound,
		},
		{
			name:     "local unreadable authenticated no fallback not found",
			fallback: config.FallbackNone, local: true,
			gate:       fakeGate{auth: true},
			wantAction: ActionNotFound,
		},
		{
			name:     "missing redirect mode redirects anonymous",
			fallback: config.FallbackRedirect,
			gate:       fakeGate{},
			wantAction: ActionRedirect,
		},
		{
			name:     "missing cache mode with cache permission serves collapsed upstream",
			fallback: config.FallbackCache,
			gate:       fakeGate{auth: true, read: true, update: true},
			wantAction: ActionServe, wantGateway: true, wantCollapse: true, wantEntries: 1,
		},
		{
			name:     "missing cache mode anonymous without permission challenged",
			fallback: config.FallbackCache,
			gate:       fakeGate{},
			wantAction: ActionAuthRequired,
		},
		{
			name:     "missing cache mode authenticated always-show redirects",
			fallback: config.FallbackCache, alwaysShow: true,
			gate:       fakeGate{auth: true, read: true},
			wantAction: ActionRedirect,
		},
		{
			name:     "missing cache mode authenticated hidden not found",
			fallback: config.FallbackCache,
			gate:       fakeGate{auth: true, read: true},
			wantAction: ActionNotFound,
		},
		{
			name:     "missing no fallback anonymous unreadable challenged",
			fallback: config.FallbackNone,
			gate:       fakeGate{},
			wantAction: ActionAuthRequired,
		},
		{
			name:     "missing no fallback anonymous readable not found",
			fallback: config.FallbackNone,
			gate:       fakeGate{read: true},
			wantAction: ActionNotFound,
		},
		{
			name:     "missing no fallback authenticated not found",
			fallback: config.FallbackNone,
			gate:       fakeGate{auth: true},
			wantAction: ActionNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := config.GlobalConfig{
				Fallback:           tc.fallback,
				AlwaysShowUpstream: tc.alwaysShow,
				FallbackURL:        "https://pypi.org/simple",
			}
			var local []*Package
			if tc.local {
				local = []*Package{NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginUpload)}
			}
			gateway := &fakeGateway{entries: upstream}
			resolver := newTestResolver(t, policy, local, gateway)

			result, err := resolver.Listing(context.Background(), "pkg", tc.gate)
			if err != nil {
				t.Fatalf("listing error: %v", err)
			}
			if result.Action != tc.wantAction {
				t.Fatalf("expected action %d, got %d", tc.wantAction, result.Action)
			}
			if gateway.called != tc.wantGateway {
				t.Fatalf("gateway called = %v, expected %v", gateway.called, tc.wantGateway)
			}
			if tc.wantGateway && gateway.lastCollapse != tc.wantCollapse {
				t.Fatalf("collapse = %v, expected %v", gateway.lastCollapse, tc.wantCollapse)
			}
			if tc.wantAction == ActionServe && len(result.Listing) != tc.wantEntries {
				t.Fatalf("expected %d listing entries, got %d", tc.wantEntries, len(result.Listing))
			}
			if tc.wantAction == ActionRedirect && result.Location != "https://pypi.org/simple/pkg/" {
				t.Fatalf("unexpected redirect location %q", result.Location)
			}
		})
	}
}

func TestListingLocalWinsOnFilenameCollision(t *testing.T) {
	policy := config.GlobalConfig{
		Fallback:           config.FallbackCache,
		AlwaysShowUpstream: true,
		FallbackURL:        "https://pypi.org/simple",
	}
	local := NewPackage("pkg", "1.1", "pkg-1.1.tar.gz", OriginUpload)
	local.HashSHA256 = "localhash"
	gateway := &fakeGateway{entries: map[string]fallback.Entry{
		"pkg-1.1.tar.gz": {Name: "pkg", Version: "1.1", Filename: "pkg-1.1.tar.gz", URL: "/api/package/pkg/pkg-1.1.tar.gz", HashSHA256: "upstreamhash"},
		"pkg-2.1.tar.gz": {Name: "pkg", Version: "2.1", Filename: "pkg-2.1.tar.gz", URL: "/api/package/pkg/pkg-2.1.tar.gz"},
	}}
	resolver := newTestResolver(t, policy, []*Package{local}, gateway)

	result, err := resolver.Listing(context.Background(), "pkg", fakeGate{auth: true, read: true, update: true})
	if err != nil {
		t.Fatalf("listing error: %v", err)
	}
	if len(result.Listing) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Listing))
	}

	collided := result.Listing["pkg-1.1.tar.gz"]
	if collided.HashSHA256 == nil || *collided.HashSHA256 != "localhash" {
		t.Fatalf("expected local record to win the collision, got %+v", collided)
	}
	if collided.NonHashedURL == "" {
		t.Fatalf("expected non_hashed_url on the local entry")
	}
	if result.Listing["pkg-2.1.tar.gz"].NonHashedURL != "" {
		t.Fatalf("expected no non_hashed_url on the upstream-only entry")
	}
}

func TestReleasesJSONGroupsByVersion(t *testing.T) {
	policy := config.GlobalConfig{Fallback: config.FallbackNone, FallbackURL: "https://pypi.org/simple"}
	sdist := NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginUpload)
	sdist.HashSHA256 = "abc"
	sdist.HashMD5 = "def"
	wheel := NewPackage("pkg", "1.0", "pkg-1.0-py3-none-any.whl", OriginUpload)
	resolver := newTestResolver(t, policy, []*Package{sdist, wheel}, &fakeGateway{})

	result, err := resolver.ReleasesJSON(context.Background(), "pkg", fakeGate{auth: true, read: true}, "/pypi/pkg/json")
	if err != nil {
		t.Fatalf("releases error: %v", err)
	}
	files := result.Releases["1.0"]
	if len(files) != 2 {
		t.Fatalf("expected 2 files under version 1.0, got %d", len(files))
	}
	for _, file := range files {
		switch file.Filename {
		case "pkg-1.0.tar.gz":
			if file.PackageType != "sdist" {
				t.Fatalf("expected sdist, got %s", file.PackageType)
			}
			if file.Digests["sha256"] != "abc" || file.MD5Digest != "def" {
				t.Fatalf("unexpected digests: %+v md5=%s", file.Digests, file.MD5Digest)
			}
		case "pkg-1.0-py3-none-any.whl":
			if file.PackageType != "bdist_wheel" {
				t.Fatalf("expected bdist_wheel, got %s", file.PackageType)
			}
			if file.Digests != nil {
				t.Fatalf("expected no digest map without hashes, got %+v", file.Digests)
			}
		default:
			t.Fatalf("unexpected filename %s", file.Filename)
		}
	}
}

func TestReleasesJSONRedirectUsesBaseURL(t *testing.T) {
	policy := config.GlobalConfig{
		Fallback:        config.FallbackRedirect,
		FallbackURL:     "https://pypi.org/simple",
		FallbackBaseURL: "https://pypi.org/",
	}
	resolver := newTestResolver(t, policy, nil, &fakeGateway{})

	result, err := resolver.ReleasesJSON(context.Background(), "pkg", fakeGate{}, "/pypi/pkg/json")
	if err != nil {
		t.Fatalf("releases error: %v", err)
	}
	if result.Action != ActionRedirect {
		t.Fatalf("expected redirect, got action %d", result.Action)
	}
	if result.Location != "https://pypi.org/pypi/pkg/json" {
		t.Fatalf("unexpected redirect location %q", result.Location)
	}
}

type projectGate struct {
	readable map[string]bool
}

func (projectGate) Authenticated() bool { return true }
func (g projectGate) CanRead(name string) bool { return g.readable[name] }
func (projectGate) CanUpdateCache() bool { return false }

func TestProjectsFiltersUnreadable(t *testing.T) {
	policy := config.GlobalConfig{Fallback: config.FallbackNone, FallbackURL: "https://pypi.org/simple"}
	resolver := newTestResolver(t, policy, []*Package{
		NewPackage("open", "1.0", "open-1.0.tar.gz", OriginUpload),
		NewPackage("secret", "1.0", "secret-1.0.tar.gz", OriginUpload),
	}, &fakeGateway{})

	names, err := resolver.Projects(context.Background(), projectGate{readable: map[string]bool{"open": true}})
	if err != nil {
		t.Fatalf("projects error: %v", err)
	}
	if len(names) != 1 || names[0] != "open" {
		t.Fatalf("unexpected visible projects: %v", names)
	}
}

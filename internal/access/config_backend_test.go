package access

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/wheelhub/wheelhub/internal/config"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func newTestBackend(t *testing.T) Backend {
	t.Helper()
	return NewConfigBackend(config.AccessConfig{
		Users: []config.UserConfig{
			{Name: "alice", PasswordHash: hashPassword(t, "wonderland")},
			{Name: "root", PasswordHash: hashPassword(t, "toor"), Admin: true},
		},
		DefaultRead: []string{PrincipalEveryone},
		CacheUpdate: []string{"alice"},
		Packages: map[string]config.PackageACL{
			"Secret_Pkg": {Read: []string{"alice"}, Write: []string{"alice"}},
			"open-pkg":   {Read: []string{PrincipalEveryone}},
		},
	})
}

func TestVerifyPassword(t *testing.T) {
	backend := newTestBackend(t)

	if !backend.Verify("alice", "wonderland") {
		t.Fatalf("expected valid credentials to verify")
	}
	if backend.Verify("alice", "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if backend.Verify("nobody", "wonderland") {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestAdminBypassesACLs(t *testing.T) {
	backend := newTestBackend(t)

	if !backend.HasPermission("root", "secret-pkg", PermRead) {
		t.Fatalf("admin should read any project")
	}
	if !backend.HasPermission("root", "anything", PermWrite) {
		t.Fatalf("admin should write any project")
	}
	if !backend.CanUpdateCache("root") {
		t.Fatalf("admin should update the cache")
	}
}

func TestPackageACLOverridesDefault(t *testing.T) {
	backend := newTestBackend(t)

	// ACL names are matched case and separator insensitively.
	if !backend.HasPermission("alice", "secret-pkg", PermRead) {
		t.Fatalf("alice should read secret-pkg")
	}
	if backend.HasPermission("bob", "secret-pkg", PermRead) {
		t.Fatalf("bob must not read secret-pkg despite the open default")
	}
	if !backend.HasPermission("alice", "secret-pkg", PermWrite) {
		t.Fatalf("alice should write secret-pkg")
	}
	if backend.HasPermission("bob", "secret-pkg", PermWrite) {
		t.Fatalf("bob must not write secret-pkg")
	}
}

func TestDefaultReadAppliesWithoutACL(t *testing.T) {
	backend := newTestBackend(t)

	if !backend.HasPermission("", "plain-pkg", PermRead) {
		t.Fatalf("everyone default should allow anonymous reads")
	}
	if backend.HasPermission("alice", "plain-pkg", PermWrite) {
		t.Fatalf("non-admin writes require an explicit ACL")
	}
}

func TestCacheUpdatePrincipals(t *testing.T) {
	backend := newTestBackend(t)

	if !backend.CanUpdateCache("alice") {
		t.Fatalf("alice is listed for cache updates")
	}
	if backend.CanUpdateCache("bob") {
		t.Fatalf("bob is not listed for cache updates")
	}
	if backend.CanUpdateCache("") {
		t.Fatalf("anonymous callers must not update the cache")
	}
}

func TestEmptyListsFallBackToAuthenticated(t *testing.T) {
	backend := NewConfigBackend(config.AccessConfig{
		Users: []config.UserConfig{
			{Name: "alice", PasswordHash: hashPassword(t, "pw")},
		},
	})

	if backend.HasPermission("", "pkg", PermRead) {
		t.Fatalf("anonymous reads should be denied by default")
	}
	if !backend.HasPermission("alice", "pkg", PermRead) {
		t.Fatalf("authenticated reads should be allowed by default")
	}
	if !backend.CanUpdateCache("alice") {
		t.Fatalf("authenticated cache updates should be allowed by default")
	}
	if backend.CanUpdateCache("") {
		t.Fatalf("anonymous cache updates should be denied by default")
	}
}

func TestGateNormalizesProjectNames(t *testing.T) {
	backend := newTestBackend(t)
	gate := NewGate(backend, "alice")

	if !gate.CanRead("Secret.Pkg") {
		t.Fatalf("gate should normalize the project name before the ACL lookup")
	}
	if !gate.Authenticated() || gate.Username() != "alice" {
		t.Fatalf("unexpected identity state")
	}

	anonymous := NewGate(backend, "")
	if anonymous.Authenticated() {
		t.Fatalf("empty username must be anonymous")
	}
	if anonymous.CanRead("Secret.Pkg") {
		t.Fatalf("anonymous must not read secret-pkg")
	}
}

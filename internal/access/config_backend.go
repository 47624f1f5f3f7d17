package access

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/index"
)

// Principal specials accepted in ACL lists.
const (
	PrincipalEveryone      = "everyone"
	PrincipalAuthenticated = "authenticated"
)

// NewConfigBackend builds a Backend from the static access section of the
// configuration file. Passwords are stored as bcrypt hashes.
//
// Defaults when a list is empty: reads are open to authenticated users,
// writes to admins, cache updates to authenticated users.
func NewConfigBackend(cfg config.AccessConfig) Backend {
	backend := &configBackend{
		users:       make(map[string]config.UserConfig, len(cfg.Users)),
		defaultRead: cfg.DefaultRead,
		cacheUpdate: cfg.CacheUpdate,
		packages:    make(map[string]config.PackageACL, len(cfg.Packages)),
	}
	for _, user := range cfg.Users {
		backend.users[user.Name] = user
	}
	for name, acl := range cfg.Packages {
		backend.packages[index.NormalizeName(name)] = acl
	}
	if len(backend.defaultRead) == 0 {
		backend.defaultRead = []string{PrincipalAuthenticated}
	}
	if len(backend.cacheUpdate) == 0 {
		backend.cacheUpdate = []string{PrincipalAuthenticated}
	}
	return backend
}

type configBackend struct {
	users       map[string]config.UserConfig
	defaultRead []string
	cacheUpdate []string
	packages    map[string]config.PackageACL
}

func (b *configBackend) Verify(username, password string) bool {
	user, ok := b.users[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (b *configBackend) HasPermission(username, project, perm string) bool {
	if user, ok := b.users[username]; ok && user.Admin {
		return true
	}

	acl, hasACL := b.packages[project]
	switch perm {
	case PermRead:
		if hasACL && len(acl.Read) > 0 {
			return b.matches(username, acl.Read)
		}
		return b.matches(username, b.defaultRead)
	case PermWrite:
		if hasACL && len(acl.Write) > 0 {
			return b.matches(username, acl.Write)
		}
		// Without an explicit ACL only admins may write, handled above.
		return false
	default:
		return false
	}
}

func (b *configBackend) CanUpdateCache(username string) bool {
	if user, ok := b.users[username]; ok && user.Admin {
		return true
	}
	return b.matches(username, b.cacheUpdate)
}

// matches checks a principal list against the caller identity.
func (b *configBackend) matches(username string, principals []string) bool {
	for _, principal := range principals {
		switch principal {
		case PrincipalEveryone:
			return true
		case PrincipalAuthenticated:
			if username != "" {
				return true
			}
		default:
			if principal == username {
				return true
			}
		}
	}
	return false
}

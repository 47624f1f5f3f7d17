package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fallback modes controlling what happens when a project has no local packages.
const (
	FallbackNone     = "none"
	FallbackRedirect = "redirect"
	FallbackCache    = "cache"
)

// Storage backend kinds.
const (
	BackendFS     = "fs"
	BackendObject = "object"
)

// Duration accepts both Go duration strings ("30s", "24h") and plain integer
// seconds, so operators can write either form in the TOML file.
type Duration time.Duration

// UnmarshalText lets Viper decode the flexible duration syntax.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the plain time.Duration for callers doing arithmetic.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig holds process-wide behavior shared by every request.
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// Fallback selects the policy for projects absent from local storage:
	// none (404), redirect (send the client upstream) or cache (fetch the
	// artifact from upstream and keep a local copy).
	Fallback           string `mapstructure:"Fallback"`
	AlwaysShowUpstream bool   `mapstructure:"AlwaysShowUpstream"`

	// FallbackURL is the upstream simple index root, used both for redirect
	// locations and for querying upstream releases.
	FallbackURL string `mapstructure:"FallbackURL"`
	// FallbackBaseURL, when set, is used for machine-readable redirects which
	// target a base-relative path instead of a project page.
	FallbackBaseURL string `mapstructure:"FallbackBaseURL"`

	// PackageMaxAge feeds the Cache-Control header on streamed downloads.
	PackageMaxAge Duration `mapstructure:"PackageMaxAge"`
	// StreamFiles forces downloads to stream through this server instead of
	// redirecting clients to a signed URL.
	StreamFiles bool `mapstructure:"StreamFiles"`

	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// StorageConfig describes the object-store write/read path and key layout.
type StorageConfig struct {
	Backend string `mapstructure:"Backend"`
	// Path is the root directory for the fs backend.
	Path string `mapstructure:"Path"`
	// Endpoint is the base URL signed URLs point at for the object backend.
	Endpoint string `mapstructure:"Endpoint"`

	// Prefix is the general bucket prefix prepended to every storage key.
	Prefix string `mapstructure:"Prefix"`
	// UploadPrefix, when set and distinct from Prefix, replaces it for
	// packages whose origin is upload. Cached packages always land under
	// Prefix so the two populations stay distinguishable.
	UploadPrefix string `mapstructure:"UploadPrefix"`
	// PrependHash spreads keys across storage partitions by prefixing the
	// first 4 hex chars of the MD5 of the filename. Not an integrity hash.
	PrependHash bool `mapstructure:"PrependHash"`

	// RedirectURLs makes download URLs point at time-limited signed URLs
	// instead of the proxy-relative download endpoint.
	RedirectURLs    bool     `mapstructure:"RedirectURLs"`
	SignedURLExpiry Duration `mapstructure:"SignedURLExpiry"`
	// PublicURL omits the signing query parameters; objects are expected to
	// be publicly readable.
	PublicURL  bool   `mapstructure:"PublicURL"`
	SigningKey string `mapstructure:"SigningKey"`
}

// UserConfig declares one account of the config-file access backend.
type UserConfig struct {
	Name         string `mapstructure:"Name"`
	PasswordHash string `mapstructure:"PasswordHash"`
	Admin        bool   `mapstructure:"Admin"`
}

// PackageACL overrides default permissions for a single project.
type PackageACL struct {
	Read  []string `mapstructure:"Read"`
	Write []string `mapstructure:"Write"`
}

// AccessConfig declares users and ACLs consumed by the access backend.
// Principal lists accept user names plus the specials "everyone" and
// "authenticated".
type AccessConfig struct {
	Users       []UserConfig          `mapstructure:"User"`
	DefaultRead []string              `mapstructure:"DefaultRead"`
	CacheUpdate []string              `mapstructure:"CacheUpdate"`
	Packages    map[string]PackageACL `mapstructure:"Package"`
}

// Config is the full structure mapped from the TOML file.
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Storage StorageConfig `mapstructure:"Storage"`
	Access  AccessConfig  `mapstructure:"Access"`
}

// FallbackEnabled reports whether any upstream fallback behavior is active.
func (g GlobalConfig) FallbackEnabled() bool {
	return g.Fallback == FallbackRedirect || g.Fallback == FallbackCache
}

// FallbackProjectURL builds the upstream project page used as a redirect
// location for a project without local packages.
func (g GlobalConfig) FallbackProjectURL(project string) string {
	return strings.TrimRight(g.FallbackURL, "/") + "/" + project + "/"
}

// PackageMaxAgeSeconds returns the Cache-Control max-age value.
func (g GlobalConfig) PackageMaxAgeSeconds() int {
	return int(g.PackageMaxAge.DurationValue() / time.Second)
}

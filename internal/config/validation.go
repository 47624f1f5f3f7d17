package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate performs semantic checks beyond decoding, so an invalid
// configuration never boots the server.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "must be within 1-65535")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "must be greater than 0")
	}
	if g.PackageMaxAge.DurationValue() < 0 {
		return newFieldError("PackageMaxAge", "must not be negative")
	}

	switch g.Fallback {
	case FallbackNone, FallbackRedirect, FallbackCache:
	default:
		return newFieldError("Fallback", "must be one of none|redirect|cache")
	}
	if g.FallbackEnabled() {
		if err := validateHTTPURL(g.FallbackURL); err != nil {
			return fmt.Errorf("FallbackURL: %w", err)
		}
	}
	if g.FallbackBaseURL != "" {
		if err := validateHTTPURL(g.FallbackBaseURL); err != nil {
			return fmt.Errorf("FallbackBaseURL: %w", err)
		}
	}

	s := c.Storage
	switch s.Backend {
	case BackendFS:
		if s.Path == "" {
			return newFieldError("Storage.Path", "required for the fs backend")
		}
	case BackendObject:
		if err := validateHTTPURL(s.Endpoint); err != nil {
			return fmt.Errorf("Storage.Endpoint: %w", err)
		}
		if s.RedirectURLs && !s.PublicURL && s.SigningKey == "" {
			return newFieldError("Storage.SigningKey", "required when RedirectURLs is set and PublicURL is not")
		}
	default:
		return newFieldError("Storage.Backend", "must be one of fs|object")
	}
	if s.SignedURLExpiry.DurationValue() <= 0 {
		return newFieldError("Storage.SignedURLExpiry", "must be greater than 0")
	}

	seen := map[string]struct{}{}
	for _, user := range c.Access.Users {
		if user.Name == "" {
			return newFieldError("Access.User[].Name", "must not be empty")
		}
		if _, dup := seen[user.Name]; dup {
			return newFieldError(fmt.Sprintf("Access.User[%s]", user.Name), "duplicate user")
		}
		seen[user.Name] = struct{}{}
		if user.PasswordHash == "" {
			return newFieldError(fmt.Sprintf("Access.User[%s].PasswordHash", user.Name), "must not be empty")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("missing URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https supported: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host: %s", raw)
	}
	return nil
}

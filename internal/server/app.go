package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/access"
)

const (
	contextKeyIdentity  = "_wheelhub_identity"
	contextKeyRequestID = "_wheelhub_request_id"

	// AuthRealm is sent on every authentication challenge.
	AuthRealm = `Basic realm="wheelhub"`
)

// AppOptions controls how the Fiber application behaves.
type AppOptions struct {
	Logger     *logrus.Logger
	Access     access.Backend
	ListenPort int
}

// NewApp builds the Fiber application with panic recovery, request ids and
// basic-auth identity extraction. Route registration is separate so tests can
// assemble partial apps.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Access == nil {
		return nil, errors.New("access backend is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	return app, nil
}

// requestContextMiddleware assigns a request id and resolves the caller
// identity from basic auth. Credentials that fail verification are rejected
// immediately instead of being downgraded to anonymous.
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		username, password, ok := parseBasicAuth(c)
		if ok {
			if !opts.Access.Verify(username, password) {
				opts.Logger.WithFields(logrus.Fields{
					"action": "auth_reject",
					"user":   username,
				}).Warn("invalid credentials")
				return Challenge(c)
			}
			c.Locals(contextKeyIdentity, username)
		}

		return c.Next()
	}
}

// Challenge emits the authentication-required response without disclosing
// anything about resource existence.
func Challenge(c fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, AuthRealm)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "authentication_required",
	})
}

// Identity returns the verified caller identity, empty for anonymous
// requests.
func Identity(c fiber.Ctx) string {
	if value := c.Locals(contextKeyIdentity); value != nil {
		if username, ok := value.(string); ok {
			return username
		}
	}
	return ""
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func parseBasicAuth(c fiber.Ctx) (username, password string, ok bool) {
	header := string(c.Request().Header.Peek(fiber.HeaderAuthorization))
	encoded, found := strings.CutPrefix(header, "Basic ")
	if !found {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	username, password, found = strings.Cut(string(decoded), ":")
	if !found || username == "" {
		return "", "", false
	}
	return username, password, true
}

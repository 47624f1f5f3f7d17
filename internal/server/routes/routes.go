// Package routes binds the resolution engine, the cache orchestrator and the
// storage backend to the HTTP surface. All translation from resolution
// outcomes to status codes lives here.
package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/access"
	"github.com/wheelhub/wheelhub/internal/cachefill"
	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/fallback"
	"github.com/wheelhub/wheelhub/internal/index"
	"github.com/wheelhub/wheelhub/internal/server"
	"github.com/wheelhub/wheelhub/internal/storage"
	"github.com/wheelhub/wheelhub/internal/version"
)

// Options carries the wired components the routes depend on.
type Options struct {
	Logger       *logrus.Logger
	Access       access.Backend
	Resolver     *index.Resolver
	Store        index.Store
	Backend      storage.Backend
	Orchestrator *cachefill.Orchestrator
	Policy       config.GlobalConfig

	// StreamFiles is the effective streaming decision: the configured flag,
	// forced on for backends that cannot mint signed URLs.
	StreamFiles bool
}

// Register binds every endpoint onto the app.
func Register(app *fiber.App, opts Options) {
	app.Get("/-/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version.Full()})
	})

	app.Get("/simple/", handleProjectList(opts))
	app.Post("/simple/", handleSimpleUpload(opts))
	app.Get("/simple/:project/", handleListing(opts))
	app.Get("/pypi/:project/json", handleReleasesJSON(opts))

	app.Get("/api", handleAllPackages(opts))
	app.Get("/api/package/:project/:filename", handleDownload(opts))
	app.Post("/api/package/:project/:version", handleAPIUpload(opts))
}

func gateFor(c fiber.Ctx, opts Options) access.Gate {
	return access.NewGate(opts.Access, server.Identity(c))
}

// forbid emits 403 for an identified caller and an auth challenge otherwise,
// so anonymous probes learn nothing.
func forbid(c fiber.Ctx, gate access.Gate) error {
	if !gate.Authenticated() {
		return server.Challenge(c)
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
}

func notFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
}

func badRequest(c fiber.Ctx, reason string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": reason})
}

// renderResult translates a resolution outcome into a response. The serve
// payload differs per endpoint, so it comes in as a closure.
func renderResult(c fiber.Ctx, result index.Result, serve func(fiber.Ctx) error) error {
	switch result.Action {
	case index.ActionServe:
		return serve(c)
	case index.ActionAuthRequired:
		return server.Challenge(c)
	case index.ActionForbidden:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case index.ActionRedirect:
		return c.Redirect().Status(fiber.StatusFound).To(result.Location)
	case index.ActionConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict"})
	default:
		return notFound(c)
	}
}

// renderError maps internal failures: upstream transport failures become 502,
// everything else 500.
func renderError(c fiber.Ctx, logger *logrus.Logger, action string, err error) error {
	logger.WithError(err).WithFields(logrus.Fields{
		"action":     action,
		"request_id": server.RequestID(c),
	}).Error("request failed")

	if errors.Is(err, fallback.ErrUpstream) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_unavailable"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
}

package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/wheelhub/wheelhub/internal/logging"
)

// handleProjectList serves the root simple index: the distinct project names
// the caller may read.
func handleProjectList(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		gate := gateFor(c, opts)
		names, err := opts.Resolver.Projects(c.Context(), gate)
		if err != nil {
			return renderError(c, opts.Logger, "project_list", err)
		}
		return c.JSON(fiber.Map{"pkgs": names})
	}
}

// handleListing serves the per-project file listing.
func handleListing(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		gate := gateFor(c, opts)
		project := c.Params("project")

		result, err := opts.Resolver.Listing(c.Context(), project, gate)
		if err != nil {
			return renderError(c, opts.Logger, "listing", err)
		}
		opts.Logger.WithFields(logging.RequestFields("listing", project, gate.Username())).Debug("resolved listing")
		return renderResult(c, result, func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"pkgs": result.Listing})
		})
	}
}

// handleReleasesJSON serves the machine-readable listing grouped by version.
func handleReleasesJSON(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		gate := gateFor(c, opts)
		project := c.Params("project")

		result, err := opts.Resolver.ReleasesJSON(c.Context(), project, gate, string(c.Request().URI().Path()))
		if err != nil {
			return renderError(c, opts.Logger, "listing_json", err)
		}
		return renderResult(c, result, func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"releases": result.Releases})
		})
	}
}

// handleSimpleUpload accepts the distutils-style upload form. Only the
// file_upload action is recognized.
func handleSimpleUpload(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		if action := c.FormValue(":action"); action != "file_upload" {
			return badRequest(c, "unsupported_action")
		}
		return performUpload(c, opts, c.FormValue("name"), c.FormValue("version"))
	}
}

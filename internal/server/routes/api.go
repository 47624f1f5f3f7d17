package routes

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/cachefill"
	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/index"
	"github.com/wheelhub/wheelhub/internal/server"
	"github.com/wheelhub/wheelhub/internal/storage"
)

// handleAllPackages lists package names the caller may read; ?verbose=true
// adds summary and last-modified.
func handleAllPackages(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		gate := gateFor(c, opts)
		names, err := opts.Resolver.Projects(c.Context(), gate)
		if err != nil {
			return renderError(c, opts.Logger, "all_packages", err)
		}

		verbose := string(c.Request().URI().QueryArgs().Peek("verbose")) == "true"
		if !verbose {
			return c.JSON(fiber.Map{"packages": names})
		}

		type verbosePackage struct {
			Name         string `json:"name"`
			Summary      string `json:"summary"`
			LastModified string `json:"last_modified"`
		}
		detailed := make([]verbosePackage, 0, len(names))
		for _, name := range names {
			packages, err := opts.Store.All(c.Context(), name)
			if err != nil {
				return renderError(c, opts.Logger, "all_packages", err)
			}
			latest := latestPackage(packages)
			if latest == nil {
				continue
			}
			detailed = append(detailed, verbosePackage{
				Name:         name,
				Summary:      latest.Summary,
				LastModified: latest.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		return c.JSON(fiber.Map{"packages": detailed})
	}
}

func latestPackage(packages []*index.Package) *index.Package {
	var latest *index.Package
	for _, pkg := range packages {
		if latest == nil || pkg.LastModified.After(latest.LastModified) {
			latest = pkg
		}
	}
	return latest
}

// handleDownload serves a locally stored artifact, or runs the cache-fill
// path for authorized misses under fallback=cache.
func handleDownload(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		gate := gateFor(c, opts)
		project := c.Params("project")
		filename := c.Params("filename")

		pkg, err := opts.Store.Fetch(c.Context(), filename)
		if err != nil {
			return renderError(c, opts.Logger, "download", err)
		}

		if pkg != nil {
			if !gate.CanRead(pkg.Name) {
				return forbid(c, gate)
			}
			if opts.StreamFiles {
				return streamPackage(c, opts, pkg)
			}
			signed, err := opts.Backend.SignedURL(pkg)
			if err != nil {
				return renderError(c, opts.Logger, "download", err)
			}
			return c.Redirect().Status(fiber.StatusFound).To(signed)
		}

		if opts.Policy.Fallback != config.FallbackCache {
			return notFound(c)
		}

		body, cached, err := opts.Orchestrator.FetchAndCache(c.Context(), project, filename, gate)
		if err != nil {
			switch {
			case errors.Is(err, cachefill.ErrForbidden):
				return forbid(c, gate)
			case errors.Is(err, cachefill.ErrNotFound):
				return notFound(c)
			default:
				return renderError(c, opts.Logger, "cache_fill", err)
			}
		}

		opts.Logger.WithFields(logrus.Fields{
			"action":     "download_cached",
			"project":    cached.Name,
			"filename":   cached.Filename,
			"request_id": server.RequestID(c),
		}).Info("served freshly cached package")

		setDownloadHeaders(c, opts)
		return c.Status(fiber.StatusOK).Send(body)
	}
}

// streamPackage copies the stored object through this service. The stream is
// closed on every exit path, including copy errors.
func streamPackage(c fiber.Ctx, opts Options, pkg *index.Package) error {
	reader, err := opts.Backend.Open(c.Context(), pkg)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			opts.Logger.WithFields(logrus.Fields{
				"action":   "download_missing_object",
				"filename": pkg.Filename,
			}).Error("package record has no stored object")
			return notFound(c)
		}
		return renderError(c, opts.Logger, "download", err)
	}
	defer reader.Close()

	setDownloadHeaders(c, opts)
	c.Status(fiber.StatusOK)
	if _, err := io.Copy(c.Response().BodyWriter(), reader); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("read stored object: %v", err))
	}
	return nil
}

func setDownloadHeaders(c fiber.Ctx, opts Options) {
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf("public, max-age=%d", opts.Policy.PackageMaxAgeSeconds()))
}

// handleAPIUpload accepts uploads addressed by path instead of form fields.
func handleAPIUpload(opts Options) fiber.Handler {
	return func(c fiber.Ctx) error {
		return performUpload(c, opts, c.Params("project"), c.Params("version"))
	}
}

// performUpload validates permissions, rejects duplicates and persists the
// artifact plus its metadata record. Digests are computed while the body
// streams into storage.
func performUpload(c fiber.Ctx, opts Options, name, version string) error {
	gate := gateFor(c, opts)

	if name == "" || version == "" {
		return badRequest(c, "name_and_version_required")
	}
	if !gate.CanWrite(name) {
		return forbid(c, gate)
	}

	fileHeader, err := c.FormFile("content")
	if err != nil {
		return badRequest(c, "content_file_required")
	}
	filename := fileHeader.Filename

	existing, err := opts.Store.Fetch(c.Context(), filename)
	if err != nil {
		return renderError(c, opts.Logger, "upload", err)
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return renderError(c, opts.Logger, "upload", err)
	}
	defer file.Close()

	pkg := index.NewPackage(name, version, filename, index.OriginUpload)
	pkg.Summary = c.FormValue("summary")

	sha256Hasher := sha256.New()
	md5Hasher := md5.New()
	body := io.TeeReader(io.TeeReader(file, sha256Hasher), md5Hasher)

	if err := opts.Backend.Put(c.Context(), pkg, body); err != nil {
		return renderError(c, opts.Logger, "upload", err)
	}
	pkg.HashSHA256 = hex.EncodeToString(sha256Hasher.Sum(nil))
	pkg.HashMD5 = hex.EncodeToString(md5Hasher.Sum(nil))

	if err := opts.Store.Save(c.Context(), pkg); err != nil {
		if errors.Is(err, index.ErrDuplicate) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict"})
		}
		return renderError(c, opts.Logger, "upload", err)
	}

	opts.Logger.WithFields(logrus.Fields{
		"action":     "upload",
		"project":    pkg.Name,
		"filename":   pkg.Filename,
		"user":       gate.Username(),
		"request_id": server.RequestID(c),
	}).Info("package uploaded")

	return c.JSON(fiber.Map{
		"name":     pkg.Name,
		"version":  pkg.Version,
		"filename": pkg.Filename,
	})
}

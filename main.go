package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wheelhub/wheelhub/internal/access"
	"github.com/wheelhub/wheelhub/internal/cachefill"
	"github.com/wheelhub/wheelhub/internal/config"
	"github.com/wheelhub/wheelhub/internal/fallback"
	"github.com/wheelhub/wheelhub/internal/index"
	"github.com/wheelhub/wheelhub/internal/logging"
	"github.com/wheelhub/wheelhub/internal/server"
	"github.com/wheelhub/wheelhub/internal/server/routes"
	"github.com/wheelhub/wheelhub/internal/storage"
	"github.com/wheelhub/wheelhub/internal/version"
)

// cliOptions collects parsed CLI flags so tests can inject them directly.
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run executes the selected mode and returns the process exit code, which
// keeps the flow testable without os.Exit.
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "init logging: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_backend"] = cfg.Storage.Backend
		fields["fallback"] = cfg.Global.Fallback
		fields["users"] = len(cfg.Access.Users)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("configuration is valid")
		return 0
	}

	store := index.NewMemoryStore()
	keys := storage.NewKeyResolver(cfg.Storage)
	httpClient := server.NewUpstreamClient(cfg)

	backend, err := buildBackend(cfg, keys, httpClient)
	if err != nil {
		fmt.Fprintf(stdErr, "init storage backend: %v\n", err)
		return 1
	}

	if loader, ok := backend.(storage.Loader); ok {
		count, err := reloadIndex(context.Background(), store, loader)
		if err != nil {
			fmt.Fprintf(stdErr, "reload package index: %v\n", err)
			return 1
		}
		logger.WithFields(logrus.Fields{
			"action":   "index_reload",
			"packages": count,
		}).Info("package index rebuilt from storage")
	}

	accessBackend := access.NewConfigBackend(cfg.Access)
	gateway := fallback.NewGateway(httpClient, cfg.Global.FallbackURL, logger)

	// Signed URLs only exist on the object backend; the filesystem backend
	// always streams regardless of the configured flags.
	redirect := cfg.Storage.RedirectURLs && cfg.Storage.Backend == config.BackendObject
	urls := storage.NewURLResolver(backend, redirect)

	resolver := index.NewResolver(store, urls, gateway, cfg.Global, logger)
	orchestrator := cachefill.NewOrchestrator(store, backend, gateway, logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["storage_backend"] = cfg.Storage.Backend
	fields["fallback"] = cfg.Global.Fallback
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("configuration loaded")

	routeOpts := routes.Options{
		Logger:       logger,
		Access:       accessBackend,
		Resolver:     resolver,
		Store:        store,
		Backend:      backend,
		Orchestrator: orchestrator,
		Policy:       cfg.Global,
		StreamFiles:  cfg.Global.StreamFiles || !redirect,
	}

	if err := startHTTPServer(cfg, accessBackend, routeOpts, logger); err != nil {
		fmt.Fprintf(stdErr, "http server: %v\n", err)
		return 1
	}
	return 0
}

// buildBackend picks the storage implementation from configuration.
func buildBackend(cfg *config.Config, keys storage.KeyResolver, client *http.Client) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendFS:
		return storage.NewFSBackend(cfg.Storage.Path, keys, fallback.VersionFromFilename)
	case config.BackendObject:
		return storage.NewObjectBackend(cfg.Storage, keys, client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// reloadIndex rebuilds the in-memory index from whatever the backend holds.
// The loader yields general-area records before upload-area records, so a
// file present in both areas ends up represented by its upload record.
func reloadIndex(ctx context.Context, store index.Store, loader storage.Loader) (int, error) {
	packages, err := loader.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, pkg := range packages {
		if err := store.Save(ctx, pkg); err != nil {
			if !errors.Is(err, index.ErrDuplicate) {
				return 0, err
			}
			existing, ferr := store.Fetch(ctx, pkg.Filename)
			if ferr != nil {
				return 0, ferr
			}
			if existing != nil {
				if derr := store.Delete(ctx, existing); derr != nil {
					return 0, derr
				}
			}
			if serr := store.Save(ctx, pkg); serr != nil {
				return 0, serr
			}
		}
	}
	return len(packages), nil
}

// parseCLIFlags resolves flags and the WHEELHUB_CONFIG environment override
// into the final option set.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("wheelhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "config file path (default ./config.toml, WHEELHUB_CONFIG overrides)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the configuration and exit")
	fs.BoolVar(&showVer, "version", false, "print version information")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parse flags: %w", err)
	}

	path := os.Getenv("WHEELHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, accessBackend access.Backend, routeOpts routes.Options, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Access:     accessBackend,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.Register(app, routeOpts)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("http server starting")

	return app.Listen(fmt.Sprintf(":%d", port))
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gwhttp "github.com/gatewarden/gatewarden/internal/adapter/inbound/http"
	"github.com/gatewarden/gatewarden/internal/adapter/outbound/catalog"
	"github.com/gatewarden/gatewarden/internal/adapter/outbound/memory"
	"github.com/gatewarden/gatewarden/internal/adapter/outbound/sqlite"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/domain/ratelimit"
	"github.com/gatewarden/gatewarden/internal/domain/tenant"
	"github.com/gatewarden/gatewarden/internal/service"
)

// sqlitePruneInterval is how often dead counter windows are removed from the
// durable store; the memory store prunes itself.
const sqlitePruneInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission gateway",
	Long: `Start the gatewarden HTTP server.

Every configured route is guarded by the admission pipeline. Requests carry
the tenant in the X-Tenant-ID header and authenticate with a bearer API key;
anonymous requests are admitted but rate limited by client IP and skip
tenant and quota checks.

Examples:
  # Start with config file settings
  gatewarden serve

  # Start with a specific config file
  gatewarden --config /path/to/gatewarden.yaml serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	if used := config.ConfigFileUsed(); used != "" {
		logger.Info("configuration loaded", "file", used)
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Counter store: memory resets on restart, sqlite survives it.
	var (
		counters ratelimit.CounterStore
		pinger   gwhttp.CounterStorePinger
	)
	switch cfg.Store.Kind {
	case "sqlite":
		store, err := sqlite.NewCounterStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open counter store: %w", err)
		}
		defer store.Close()
		go pruneLoop(ctx, store, logger)
		counters, pinger = store, store
	default:
		store := memory.NewCounterStore()
		store.StartCleanup(ctx)
		defer store.Stop()
		counters, pinger = store, store
	}
	logger.Info("counter store ready", "kind", cfg.Store.Kind)

	// Tenant catalog feeds the in-memory stores behind the context loader.
	if cfg.Catalog.File == "" {
		return fmt.Errorf("catalog.file is required by serve")
	}
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	catalogStore := memory.NewCatalogStore()
	catalogStore.Replace(cat.Tenants, cat.Memberships, cat.Plans)
	logger.Info("catalog loaded", "file", cfg.Catalog.File,
		"tenants", len(cat.Tenants), "memberships", len(cat.Memberships), "plans", len(cat.Plans))

	loader := tenant.NewLoader(catalogStore, catalogStore, catalogStore, logger)
	cache := tenant.NewContextCacheWithConfig(loader,
		cfg.Cache.TTLDuration(), cfg.Cache.CleanupDuration(), logger)
	cache.StartCleanup(ctx)
	defer cache.Stop()

	limiter := ratelimit.NewWindowedLimiter(counters, logger)
	limitFor := func(route string) ratelimit.Config {
		rl := cfg.RateLimit.RouteLimit(route)
		return ratelimit.Config{
			Window:      rl.WindowDuration(),
			MaxHits:     rl.MaxHits,
			CountPolicy: ratelimit.CountPolicy(rl.CountPolicy),
		}
	}

	svc := service.NewAdmissionService(limiter, cache, memory.NewUsageStore(), limitFor, logger)

	opts := []gwhttp.Option{
		gwhttp.WithAddr(cfg.Server.HTTPAddr),
		gwhttp.WithLogger(logger),
		gwhttp.WithLegacyHeaders(cfg.Server.LegacyRateLimitHeaders),
		gwhttp.WithAPIKeys(cfg.PrincipalTable()),
		gwhttp.WithHealthChecker(gwhttp.NewHealthChecker(pinger, cache, Version)),
	}

	routes := cfg.Routes
	if len(routes) == 0 {
		routes = []config.RouteConfig{{Name: "ping", Path: "/v1/ping"}}
	}
	for _, route := range routes {
		rule := gwhttp.RouteRule{
			Route:          route.Name,
			KeyStrategy:    cfg.RateLimit.RouteLimit(route.Name).KeyStrategy,
			Feature:        route.Feature,
			LimitName:      route.Limit,
			UsageIncrement: route.UsageIncrement,
			OverageCeiling: route.OverageCeiling,
			Degrade:        route.Degrade,
		}
		opts = append(opts, gwhttp.WithProtectedRoute(route.Path, rule, admittedHandler(route.Name)))
		logger.Info("route mounted", "route", route.Name, "path", route.Path,
			"feature", route.Feature, "limit", route.Limit)
	}

	server := gwhttp.NewServer(svc, opts...)
	gwhttp.RegisterContextCacheStats(server.Registry(), cache)

	return server.Start(ctx)
}

// admittedHandler answers for requests that made it through the pipeline.
// Downstream business logic would be mounted here instead.
func admittedHandler(route string) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		body := map[string]string{"status": "ok", "route": route}
		if restriction := gwhttp.RestrictionFromContext(r.Context()); restriction != "" {
			body["restricted"] = restriction
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}

// pruneLoop periodically removes counters from long-dead windows.
func pruneLoop(ctx context.Context, store *sqlite.CounterStore, logger *slog.Logger) {
	ticker := time.NewTicker(sqlitePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune(ctx, time.Now().Add(-time.Hour))
			if err != nil {
				logger.Error("counter prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("counter prune completed", "removed", removed)
			}
		}
	}
}

// newLogger builds the process logger writing to stderr.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rise-lab/causalcache/internal/auth"
	"github.com/rise-lab/causalcache/internal/cache"
	"github.com/rise-lab/causalcache/internal/ccv"
	"github.com/rise-lab/causalcache/internal/config"
	"github.com/rise-lab/causalcache/internal/httpapi"
	"github.com/rise-lab/causalcache/internal/kvsclient"
	"github.com/rise-lab/causalcache/internal/logger"
	"github.com/rise-lab/causalcache/internal/metrics"
	"github.com/rise-lab/causalcache/internal/middleware"
	"github.com/rise-lab/causalcache/internal/ratelimit"
	"github.com/rise-lab/causalcache/internal/telemetry"
	"github.com/rise-lab/causalcache/internal/transport"
	"github.com/rise-lab/causalcache/internal/vclock"
	"github.com/rise-lab/causalcache/internal/wire"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	logger.SetDefault(appLogger)

	appLogger.Info("Starting causalcached",
		logger.String("version", version),
		logger.String("address", cfg.Address()),
		logger.String("site_id", cfg.Cache.SiteID),
		logger.String("kvs_backend", cfg.KVS.Backend))

	metrics.BuildInfo.WithLabelValues(version, "unknown", runtime.Version()).Set(1)

	ctx := context.Background()
	tracerProvider, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		Endpoint:      cfg.Tracing.OTLPEndpoint,
		ServiceName:   cfg.Tracing.ServiceName,
		SamplingRatio: cfg.Tracing.SampleRatio,
		InsecureConn:  true,
		SiteID:        cfg.Cache.SiteID,
	})
	if err != nil {
		appLogger.Error("Failed to initialize tracing", logger.Error(err))
	} else if cfg.Tracing.Enabled {
		appLogger.Info("OpenTelemetry tracing initialized",
			logger.String("endpoint", cfg.Tracing.OTLPEndpoint))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				appLogger.Error("Failed to shutdown tracer provider", logger.Error(err))
			}
		}()
	}

	// Backing KVS client. The KVS itself is out of scope; this is the
	// adapter spec.md §1 leaves as an interface.
	var kvs kvsclient.KvsAsyncClient
	switch cfg.KVS.Backend {
	case "badger":
		badgerClient, err := kvsclient.NewBadgerClient(cfg.KVS.DataDir, cfg.KVS.SyncWrites, appLogger)
		if err != nil {
			log.Fatalf("Failed to initialize badger kvs client: %v", err)
		}
		kvs = badgerClient
	default:
		kvs = kvsclient.NewMockClient()
	}
	defer kvs.Close()

	state := cache.NewState(cfg.Cache.SiteID, cfg.Address(), appLogger)
	clients := transport.NewClientRegistry()
	peers := transport.NewPeerDialer(appLogger)
	defer peers.Close()

	loopTransport := &transport.LoopTransport{Clients: clients, Peers: peers}
	loop := cache.NewLoop(state, kvs, loopTransport, cache.Thresholds{
		Report:  cfg.Cache.ReportInterval,
		Migrate: cfg.Cache.MigrateInterval,
	})
	loop.SelfAddr = cfg.Address()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go loop.Run(loopCtx)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length",
		MaxAge:           3600,
	}))

	app.Use(middleware.RequestLogging(appLogger))
	app.Use(middleware.MetricsMiddleware())

	if cfg.Tracing.Enabled {
		app.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))
	}

	var rateLimitService *ratelimit.Service
	if cfg.RateLimit.Enabled {
		rateLimitService = ratelimit.NewService(ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			RequestsPerSec:  cfg.RateLimit.RequestsPerSec,
			Burst:           cfg.RateLimit.Burst,
			ByIP:            cfg.RateLimit.ByIP,
			ByAPIKey:        cfg.RateLimit.ByAPIKey,
			ByClientID:      cfg.RateLimit.ByClientID,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		app.Use(middleware.RateLimitMiddleware(rateLimitService))
		appLogger.Info("Rate limiting enabled",
			logger.Int("burst", cfg.RateLimit.Burst))
	}

	var jwtService *auth.JWTService
	if cfg.Auth.Enabled {
		jwtService = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry, cfg.Auth.RefreshExpiry, cfg.Auth.Issuer)
		app.Use(middleware.JWTAuth(jwtService, []string{"/health", "/metrics"}))

		// Version-store garbage collection drops every key a client has
		// pinned for future reads; restrict it to admin-role bearers so
		// an ordinary client can't evict another client's pinned
		// dependencies.
		app.Use("/gc", middleware.RequireRole("admin"))
		app.Use("/admin", middleware.RequireRole("admin"))
	}

	server := &httpapi.Server{
		Loop:    loop,
		Clients: clients,
		Log:     appLogger,
		Timeout: cfg.Cache.RequestTimeout,
	}
	server.RegisterRoutes(app)

	if rateLimitService != nil {
		// Lets an operator block a misbehaving client_id without
		// restarting the process; the rate limit middleware consults
		// this same access list on every request.
		app.Post("/admin/blocklist", func(c *fiber.Ctx) error {
			var req struct {
				ClientID string `json:"client_id"`
				Reason   string `json:"reason"`
				TTL      string `json:"ttl"`
			}
			if err := c.BodyParser(&req); err != nil || req.ClientID == "" {
				return middleware.BadRequest(c, "client_id is required")
			}
			ttl := 24 * time.Hour
			if req.TTL != "" {
				parsed, err := time.ParseDuration(req.TTL)
				if err != nil {
					return middleware.BadRequest(c, "ttl must be a duration string, e.g. \"1h\"")
				}
				ttl = parsed
			}
			err := rateLimitService.AccessList().AddToBlacklist(ratelimit.BlacklistEntry{
				Identifier: req.ClientID,
				Type:       "client",
				Reason:     req.Reason,
				ExpiresAt:  time.Now().Add(ttl),
				AddedBy:    middleware.GetUserID(c),
			})
			if err != nil {
				return middleware.BadRequest(c, err.Error())
			}
			return c.SendStatus(fiber.StatusNoContent)
		})
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version})
	})

	transport.MountPeerEndpoint(app, appLogger, transport.PeerHandlers{
		OnVersionedKeyRequest: func(addr string, req wire.VersionedKeyRequest) {
			loop.PeerRequests <- cache.VersionedKeyRequest{ClientID: req.ClientID, Keys: req.Keys, FromAddr: addr}
		},
		OnVersionedKeyResponse: func(addr string, resp wire.VersionedKeyResponse) {
			values := make(map[string]ccv.Value, len(resp.Tuples))
			for _, tuple := range resp.Tuples {
				values[tuple.Key] = ccv.New(vclock.Clock(tuple.VC.ToMap()), ccv.NewPayload(tuple.Payload...))
			}
			loop.PeerResponses <- cache.VersionedKeyResponse{ClientID: resp.ClientID, Values: values, FromAddr: addr}
		},
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		if cfg.Server.TLS.Enabled {
			if err := app.ListenTLS(cfg.Address(), cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil {
				appLogger.Error("Failed to start TLS server", logger.Error(err))
				log.Fatalf("Listen TLS error: %v", err)
			}
		} else {
			if err := app.Listen(cfg.Address()); err != nil {
				appLogger.Error("Failed to start server", logger.Error(err))
				log.Fatalf("Listen error: %v", err)
			}
		}
	}()

	appLogger.Info("Server starting", logger.String("address", cfg.Address()))
	<-quit
	appLogger.Info("Shutting down server...")

	cancelLoop()
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Error(err))
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited gracefully")
}

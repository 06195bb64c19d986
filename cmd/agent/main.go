package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"fieldattend/internal/auth"
	"fieldattend/internal/backend"
	"fieldattend/internal/camera"
	"fieldattend/internal/capture"
	"fieldattend/internal/compositor"
	"fieldattend/internal/config"
	"fieldattend/internal/geo"
	"fieldattend/internal/httpapi"
	"fieldattend/internal/httpmiddleware"
	"fieldattend/internal/journal"
	"fieldattend/internal/permission"
	"fieldattend/internal/preview"
	"fieldattend/internal/queue"
	"fieldattend/internal/store"
)

// permissionTTL is how long remembered permission outcomes stay in redis.
const permissionTTL = 30 * 24 * time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]func(context.Context) bool{}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.PermissionCache == "redis" {
		redisClient = store.NewRedis(cfg.Redis())
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	var history journal.Store = journal.NewMemoryStore(1000)
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("journal database not reachable, keeping history in memory", "error", err)
		} else {
			defer db.Close()
			repo := journal.NewRepository(db.Client)
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			history = repo
			checks["db"] = db.Healthy
		}
	}

	var events queue.Queue
	if cfg.QueueBackend == "redis" {
		events = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
	} else {
		events = queue.NewInMemory(256)
		recorder := journal.NewRecorder(history, logger)
		go func() {
			if err := recorder.Run(ctx, events); err != nil {
				logger.Error("journal recorder stopped", "error", err)
			}
		}()
	}

	var perms permission.Cache = permission.NewMemoryCache()
	if cfg.PermissionCache == "redis" {
		perms = permission.NewRedisCache(redisClient.Client, cfg.DeviceID, permissionTTL)
	}

	var locator geo.Locator = geo.StaticLocator{Latitude: cfg.StaticLatitude, Longitude: cfg.StaticLongitude}
	if cfg.Locator == "http" {
		locator = geo.NewHTTPLocator(cfg.GeoServiceURL)
	}
	geocoder := geo.NewReverseGeocoder(cfg.GeocoderURL, cfg.GeocoderUserAgent, logger)

	comp, err := compositor.New(cfg.JPEGQuality, cfg.Location)
	if err != nil {
		return err
	}

	session := auth.NewSession()
	client := backend.New(cfg.BackendURL, cfg.AttendancePath, cfg.SubmitTimeout, session)
	previews := preview.NewStore(preview.DefaultPrefix)

	metrics := capture.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	deps := capture.Deps{
		Locator:     geo.NewAcquirer(locator, cfg.GeoTimeout),
		Compositor:  comp,
		Submitter:   client,
		Addresses:   geocoder,
		Permissions: perms,
		Previews:    previews,
		Events:      events,
		EmployeeID:  session.EmployeeID,
	}
	if cfg.CaptureMode == string(capture.ModeCamera) {
		device := &camera.V4L2Device{
			Path:   cfg.CameraDevice,
			Width:  uint32(cfg.CameraWidth),
			Height: uint32(cfg.CameraHeight),
		}
		deps.Camera = camera.NewManager(device, cfg.CameraReadyTimeout, logger)
	}

	ctrl, err := capture.NewController(capture.Config{
		Mode:       capture.Mode(cfg.CaptureMode),
		Strategy:   capture.PermissionStrategy(cfg.PermissionStrategy),
		ResetDelay: cfg.ResetDelay,
		Logger:     logger,
		Metrics:    metrics,
	}, deps)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	r := httpapi.NewRouter(httpapi.Options{
		Controller:     ctrl,
		Session:        session,
		Account:        client,
		Previews:       previews,
		History:        history,
		Limiter:        httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Checks:         checks,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Production:     cfg.Production(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Submissions may take up to SubmitTimeout.
		WriteTimeout: cfg.SubmitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent listening", "addr", srv.Addr, "mode", cfg.CaptureMode, "strategy", cfg.PermissionStrategy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "error", err)
	}
	if err := ctrl.Close(); err != nil {
		logger.Warn("controller close failed", "error", err)
	}
	logger.Info("agent exited")
	return nil
}

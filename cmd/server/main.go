package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/cloudzz-dev/memberchat/internal/config"
	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
	"github.com/cloudzz-dev/memberchat/internal/server/auth"
	"github.com/cloudzz-dev/memberchat/internal/server/bus"
	"github.com/cloudzz-dev/memberchat/internal/server/handlers"
	"github.com/cloudzz-dev/memberchat/internal/server/media"
	"github.com/cloudzz-dev/memberchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/memberchat/internal/server/storage"
	"github.com/cloudzz-dev/memberchat/internal/server/ws"
)

func main() {
	cfg := config.LoadServer()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if m, ok := store.(storage.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	log.Info("store ready", "memory", cfg.DatabaseURL == "memory")

	manager, err := auth.NewManager(cfg.JWTSecret, cfg.TokenMaxAge)
	if err != nil {
		return err
	}

	eventBus, err := bus.New(log, cfg.RedisAddr, cfg.RedisChannel)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	var mediaSvc *media.Service
	if cfg.MediaBucket != "" {
		signer, err := media.NewGCSSigner(ctx, log, cfg.MediaBucket, cfg.StorageEmulator)
		if err != nil {
			return err
		}
		defer signer.Close()
		mediaSvc = media.NewService(signer, cfg.UploadURLTTL)
	} else {
		log.Warn("MEDIA_GCS_BUCKET not set, attachments disabled")
	}

	hub := ws.NewHub(log)
	limiter := ratelimit.New(cfg.MaxConnsPerIP, cfg.AuthAttemptsPerMin)
	if err := eventBus.StartForwarder(ctx, hub.Deliver); err != nil {
		return err
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestLogger(log))
	r.Use(handlers.CORS(cfg.CORSOrigins))
	handlers.New(handlers.Deps{
		Store:   store,
		Auth:    manager,
		Media:   mediaSvc,
		Bus:     eventBus,
		Hub:     hub,
		Limiter: limiter,
		Log:     log,
		Origins: cfg.CORSOrigins,
	}).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error {
		maxConns, maxAuth := limiter.Limits()
		log.Info("server starting", "port", cfg.Port, "max_conns_per_ip", maxConns, "auth_per_min", maxAuth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

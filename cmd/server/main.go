package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/config"
	"github.com/iliyamo/fitcode-qr/internal/database"
	"github.com/iliyamo/fitcode-qr/internal/handler"
	"github.com/iliyamo/fitcode-qr/internal/logger"
	"github.com/iliyamo/fitcode-qr/internal/middleware"
	"github.com/iliyamo/fitcode-qr/internal/model"
	"github.com/iliyamo/fitcode-qr/internal/queue"
	"github.com/iliyamo/fitcode-qr/internal/render"
	"github.com/iliyamo/fitcode-qr/internal/repository"
	"github.com/iliyamo/fitcode-qr/internal/router"
	"github.com/iliyamo/fitcode-qr/internal/security"
	"github.com/iliyamo/fitcode-qr/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err) // refuse to start without secrets and database settings
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	creds, err := security.NewCredentials(security.Options{
		SigningSecret: cfg.JWTSecret,
		EncryptionKey: cfg.QREncryptionKey,
		BearerTTL:     cfg.BearerTTL,
		BcryptCost:    cfg.BcryptCost,
	})
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Warn("redis unavailable; rate limiting and analytics cache disabled")
	} else {
		defer rdb.Close()
	}

	// Repositories
	users := repository.NewUserRepo(db)
	gyms := repository.NewGymRepo(db)
	machines := repository.NewMachineRepo(db)
	codes := repository.NewQRRepo(db)
	scans := repository.NewScanRepo(db)
	bookmarks := repository.NewBookmarkRepo(db)
	stats := repository.NewAnalyticsRepo(db)

	// Scan events
	var publisher service.EventPublisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		pubCtx, cancel := context.WithCancel(ctx)
		p := service.NewAMQPPublisher(cfg.AMQPURL, zl)
		go p.Run(pubCtx)
		defer func() {
			cancel()
			<-p.Done()
		}()
		publisher = p

		sink := queue.NewScanLog("logs")
		go func() {
			if err := queue.StartScanConsumer(ctx, cfg.AMQPURL, sink, zl); err != nil {
				zl.Error("scan consumer stopped", zap.Error(err))
			}
		}()
	} else {
		zl.Info("no broker configured; scan events are not published")
	}

	// Services
	renderer := render.NewQRRenderer(render.NewHTTPLogoFetcher(cfg.LogoFetchTimeout, zl), zl)
	registry := service.NewQRRegistry(gyms, machines, codes, creds, renderer, zl)
	resolver := service.NewScanResolver(codes, creds, machines, gyms, scans, publisher, zl)
	cacheCfg := config.LoadCacheConfig()
	invalidator := middleware.NewCacheInvalidator(cacheCfg, rdb)
	if rdb != nil {
		resolver.Invalidator = invalidator
	}
	analytics := service.NewAnalytics(gyms, machines, stats)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(zl))

	router.RegisterRoutes(e, router.Guards{
		Owner:      middleware.RequireAuth(creds, users, model.RoleOwner, zl),
		Client:     middleware.RequireAuth(creds, users, model.RoleClient, zl),
		Either:     middleware.RequireAuth(creds, users, model.RoleEither, zl),
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl),
		Cache:      middleware.NewRedisCache(cacheCfg, rdb, zl),
		Invalidate: middleware.InvalidateOnWrite(invalidator, zl),
	}, router.Handlers{
		Auth:      handler.NewAuthHandler(users, creds, zl),
		Owner:     handler.NewOwnerHandler(gyms, machines, zl),
		QR:        handler.NewQRHandler(registry, resolver, zl),
		Client:    handler.NewClientHandler(bookmarks, scans, machines, gyms, zl),
		Analytics: handler.NewAnalyticsHandler(analytics, zl),
		Health:    handler.Health(db),
	})

	addr := ":" + cfg.Port
	zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	zl.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

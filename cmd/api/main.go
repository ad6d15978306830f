package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-core/internal/api/http"
	"github.com/spec-kit/support-core/internal/api/http/handlers"
	"github.com/spec-kit/support-core/internal/auth"
	"github.com/spec-kit/support-core/internal/config"
	"github.com/spec-kit/support-core/internal/events"
	"github.com/spec-kit/support-core/internal/notify"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/persistence"
	"github.com/spec-kit/support-core/internal/render"
	"github.com/spec-kit/support-core/internal/repository"
	"github.com/spec-kit/support-core/internal/service"
	"github.com/spec-kit/support-core/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisConn.Close()

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = repository.NewMemoryStore()
	}

	if cfg.Support.ActorsFile != "" {
		if err := seedActors(ctx, store, cfg.Support.ActorsFile, logger); err != nil {
			logger.Fatal("failed to seed actors", zap.Error(err))
		}
	}

	dispatcher := events.NewShardedDispatcher(cfg.Fanout.Shards, cfg.Fanout.QueueSize, logger, metrics)

	var redisChannel notify.Channel
	if redisConn.Enabled() {
		redisChannel = notify.NewRedisChannel(redisConn.Client, cfg.Notification.RedisChannelPrefix)
	}
	delivery := notify.NewMulti(logger, metrics,
		redisChannel,
		notify.NewEmailChannel(cfg.Notification.ResendAPIKey, cfg.Notification.EmailFrom, store.Actors()),
		notify.NewWebhookChannel(cfg.Notification.WebhookURL, 5*time.Second),
	)
	logger.Info("notification channels configured", zap.Strings("channels", delivery.Names()))

	support := service.NewSupport(service.Dependencies{
		Store:              store,
		Dispatcher:         dispatcher,
		Delivery:           delivery,
		Metrics:            metrics,
		Logger:             logger,
		AllowReplyOnClosed: cfg.Support.AllowReplyOnClosed,
	})
	worker.StartNotificationWorker(support.Fanout, dispatcher)
	dispatcher.Start(ctx)

	relay := worker.NewOutboxRelay(support.Fanout, cfg.Fanout.SweepInterval(), cfg.Fanout.SweepBatch, logger)
	relay.Start(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Actors())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redisConn,
		}),
		Tickets:        handlers.NewTicketsHandler(support, render.NewMarkdown()),
		Notifications:  handlers.NewNotificationsHandler(support.Notifications),
		AuthMiddleware: authMiddleware,
		RateLimiter:    httptransport.NewActorRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	relay.Stop()
	dispatcher.Close()
}

func seedActors(ctx context.Context, store repository.Store, path string, logger *zap.Logger) error {
	actors, err := config.LoadActors(path)
	if err != nil {
		return err
	}
	err = store.WithinTx(ctx, func(tx repository.Store) error {
		for i := range actors {
			if err := tx.Actors().Upsert(ctx, &actors[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("actors seeded", zap.Int("count", len(actors)), zap.String("file", path))
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/handler"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/repository"
	"github.com/Alwanly/dify-indexing-watch/pkg/database"
	"github.com/Alwanly/dify-indexing-watch/pkg/deps"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/middleware"
	"github.com/Alwanly/dify-indexing-watch/pkg/pubsub"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log, err := logger.NewLoggerFromEnv("watcher")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting watcher service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.Info("configuration loaded",
		logger.String("server_addr", cfg.Watcher.ServerAddr),
		logger.String("database_path", cfg.Watcher.DatabasePath),
		logger.String("dify_host", cfg.Dify.Host),
		logger.Int(logger.FieldMaxAttempts, cfg.Poll.MaxAttempts),
		logger.Duration("base_delay", cfg.Poll.BaseDelay),
		logger.Bool("ci", cfg.RunningInCI()),
	)
	if cfg.IsOfficialHost() {
		log.Warn("polling the hosted Dify API; every attempt counts against the account quota")
	}
	if cfg.Watcher.APIToken == "" {
		log.Warn("WATCHER_API_TOKEN is empty; watch endpoints are unauthenticated")
	}

	db, err := database.NewSQLiteDB(cfg.Watcher.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	log.Info("database initialized", logger.String("path", cfg.Watcher.DatabasePath))

	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	abandoned, err := repository.NewRepository(db, nil, "").AbandonPending(context.Background(), time.Now())
	if err != nil {
		log.WithError(err).Fatal("failed to settle watches left by a previous run")
	}
	if abandoned > 0 {
		log.Warn("marked unfinished watches as abandoned", logger.Int64("count", abandoned))
	}

	app := fiber.New(fiber.Config{
		AppName:               "Indexing Watcher",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	deps := deps.App{
		Fiber:    app,
		Database: db,
		Logger:   log,
	}

	if cfg.RedisEnabled() {
		redisPub, err := pubsub.NewRedisPubSub(context.Background(), pubsub.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize redis, watch events will not be published",
				logger.String("mode", "store-only"))
		} else {
			deps.Pub = redisPub
			log.Info("redis pub/sub initialized", logger.String("channel", cfg.Redis.Channel))
			defer redisPub.Close()
		}
	} else {
		log.Info("no REDIS_ADDR provided; skipping event publishing")
	}

	client := dify.NewClient(cfg, log.Component("dify-client"))

	h, err := handler.NewHandler(deps, cfg, client, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	gErr, gCtx := errgroup.WithContext(ctx)

	gErr.Go(func() error {
		log.Info("watcher service is running", logger.String("address", cfg.Watcher.ServerAddr))
		if err := app.Listen(cfg.Watcher.ServerAddr); err != nil {
			cancel()
			return err
		}
		return nil
	})

	gErr.Go(func() error {
		<-gCtx.Done()

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shutdown fiber app")
			return err
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := h.UseCase.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("in-flight watches did not stop in time")
		}

		conn, err := db.DB()
		if err != nil {
			log.WithError(err).Error("failed to get database connection")
			return err
		}
		if err := conn.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
			return err
		}

		return nil
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		log.Info("listening for shutdown signals")
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := gErr.Wait(); err != nil {
		log.WithError(err).Fatal("watcher service encountered an error")
	}

	log.Info("watcher service stopped gracefully")
}

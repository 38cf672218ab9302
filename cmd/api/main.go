package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/smsmaster/sms-engine/internal/config"
	"github.com/smsmaster/sms-engine/internal/dispatch"
	"github.com/smsmaster/sms-engine/internal/handler"
	"github.com/smsmaster/sms-engine/internal/infra/postgresql"
	"github.com/smsmaster/sms-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/smsmaster/sms-engine/internal/infra/redis"
	"github.com/smsmaster/sms-engine/internal/observability"
	"github.com/smsmaster/sms-engine/internal/provider"
	"github.com/smsmaster/sms-engine/internal/queue"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
	"github.com/smsmaster/sms-engine/internal/repository"
	"github.com/smsmaster/sms-engine/internal/scheduler"
	"github.com/smsmaster/sms-engine/internal/service"
	"github.com/smsmaster/sms-engine/internal/transport"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	quotas, err := cfg.ProviderQuotas()
	if err != nil {
		logger.Fatal("provider quota config invalid", zap.Error(err))
	}

	var rdb *goredis.Client
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		limiter, err = infraredis.NewQuotaLimiter(rdb, quotas)
		if err != nil {
			logger.Fatal("redis rate limiter init failed", zap.Error(err))
		}
		logger.Info("using redis rate limiter")
	} else {
		limiter, err = ratelimit.NewMemoryLimiter(quotas)
		if err != nil {
			logger.Fatal("memory rate limiter init failed", zap.Error(err))
		}
		logger.Info("using in-memory rate limiter")
	}

	registry := provider.NewRegistry()
	if cfg.TwilioConfigured() {
		twilio, err := provider.NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		if err != nil {
			logger.Fatal("twilio provider init failed", zap.Error(err))
		}
		if err := registry.Register(twilio); err != nil {
			logger.Fatal("twilio provider registration failed", zap.Error(err))
		}
		logger.Info("provider registered", zap.String("provider", twilio.Name()))
	}
	if cfg.TextbeltConfigured() {
		textbelt, err := provider.NewTextbeltProvider(cfg.TextbeltAPIKey)
		if err != nil {
			logger.Fatal("textbelt provider init failed", zap.Error(err))
		}
		if err := registry.Register(textbelt); err != nil {
			logger.Fatal("textbelt provider registration failed", zap.Error(err))
		}
		logger.Info("provider registered", zap.String("provider", textbelt.Name()))
	}
	if len(registry.Names()) == 0 {
		logger.Warn("no sms provider configured; submissions will be rejected")
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	messages := repository.NewGormMessageRepo(db)
	jobs := repository.NewGormJobRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	metrics := observability.NewMetrics()

	dispatcher, err := dispatch.NewDispatcher(
		registry,
		limiter,
		messages,
		attempts,
		cfg.DefaultOrder(),
		cfg.RetryMaxAttempts,
		cfg.RetryBackoffBase(),
		cfg.SendTimeout(),
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	workers, err := service.NewWorkerService(messages, consumer, dispatcher, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker service init failed", zap.Error(err))
	}
	workers.SetMetrics(metrics)

	scanInterval, err := cfg.ScanInterval()
	if err != nil {
		logger.Fatal("scheduler config invalid", zap.Error(err))
	}
	sched, err := scheduler.NewScheduler(jobs, messages, publisher, scanInterval, cfg.SchedulerScanLimit, logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	sched.SetMetrics(metrics)

	engine, err := service.NewEngineService(messages, jobs, attempts, registry, limiter, publisher, cfg.DefaultOrder(), logger)
	if err != nil {
		logger.Fatal("engine service init failed", zap.Error(err))
	}
	engine.SetWaker(sched)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterMessageRoutes(app, engine); err != nil {
		logger.Fatal("message routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterScheduleRoutes(app, engine); err != nil {
		logger.Fatal("schedule routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterProviderRoutes(app, engine); err != nil {
		logger.Fatal("provider routes registration failed", zap.Error(err))
	}
	app.Get("/metrics", httpHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("sms-engine api listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http server")
		return app.Shutdown()
	})

	g.Go(func() error {
		logger.Info("scheduler started")
		return sched.Start(groupCtx)
	})

	g.Go(func() error {
		logger.Info("worker pool started", zap.Int("concurrency", cfg.WorkerConcurrency))
		return workers.Start(groupCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("sms-engine stopped with error", zap.Error(err))
	}
	logger.Info("sms-engine stopped")
}

func httpHandler(h http.Handler) fiber.Handler {
	fastHandler := fasthttpadaptor.NewFastHTTPHandler(h)
	return func(c *fiber.Ctx) error {
		fastHandler(c.Context())
		return nil
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/chat-relay/internal/api/http"
	"github.com/spec-kit/chat-relay/internal/api/http/handlers"
	"github.com/spec-kit/chat-relay/internal/auth"
	"github.com/spec-kit/chat-relay/internal/cache"
	"github.com/spec-kit/chat-relay/internal/config"
	"github.com/spec-kit/chat-relay/internal/observability"
	"github.com/spec-kit/chat-relay/internal/persistence"
	"github.com/spec-kit/chat-relay/internal/platform"
	"github.com/spec-kit/chat-relay/internal/provider"
	"github.com/spec-kit/chat-relay/internal/queue"
	"github.com/spec-kit/chat-relay/internal/repository"
	"github.com/spec-kit/chat-relay/internal/resolve"
	"github.com/spec-kit/chat-relay/internal/service"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	identityCache := cache.NewIdentityCache(redis.Client, cfg.Cache.Namespace, cfg.Cache.TTL(), logger)
	platformClient := platform.NewClient(cfg.Platform, logger)
	providerClient := provider.NewClient(cfg.Provider, logger)
	resolver := resolve.NewResolver(identityCache, platformClient, logger)

	var messageLog repository.MessageLogRepository
	var failedJobs repository.FailedJobRepository
	if pool := pg.PoolHandle(); pool != nil {
		messageLog = repository.NewMessageLogRepository(pool)
		failedJobs = repository.NewFailedJobRepository(pool)
	}

	pipeline := service.NewPipeline(service.PipelineDependencies{
		Resolver:   resolver,
		Platform:   platformClient,
		Provider:   providerClient,
		MessageLog: messageLog,
		SourceTag:  cfg.App.Name,
	}, logger)

	jobQueue := queue.New(redis.Client, cfg.Queue.Namespace, cfg.Queue.RetentionSize, logger)

	pools := []*queue.WorkerPool{
		queue.NewWorkerPool(jobQueue, queue.PoolOptions{
			QueueName:         queue.MessageQueue,
			Concurrency:       cfg.Queue.MessageConcurrency,
			MaxAttempts:       cfg.Queue.MaxAttempts,
			BackoffBase:       cfg.Queue.BackoffBase(),
			PollInterval:      cfg.Queue.PollInterval(),
			VisibilityTimeout: cfg.Queue.VisibilityTimeout(),
			Archiver:          failedJobs,
		}, pipeline.ProcessMessage, metrics, logger),
		queue.NewWorkerPool(jobQueue, queue.PoolOptions{
			QueueName:         queue.StatusQueue,
			Concurrency:       cfg.Queue.StatusConcurrency,
			MaxAttempts:       cfg.Queue.MaxAttempts,
			BackoffBase:       cfg.Queue.BackoffBase(),
			PollInterval:      cfg.Queue.PollInterval(),
			VisibilityTimeout: cfg.Queue.VisibilityTimeout(),
			Archiver:          failedJobs,
		}, pipeline.ProcessStatus, metrics, logger),
		queue.NewWorkerPool(jobQueue, queue.PoolOptions{
			QueueName:         queue.OutboundQueue,
			Concurrency:       cfg.Queue.OutboundConcurrency,
			MaxAttempts:       cfg.Queue.MaxAttempts,
			BackoffBase:       cfg.Queue.BackoffBase(),
			PollInterval:      cfg.Queue.PollInterval(),
			VisibilityTimeout: cfg.Queue.VisibilityTimeout(),
			Archiver:          failedJobs,
		}, pipeline.ProcessOutbound, metrics, logger),
	}
	for _, pool := range pools {
		pool.Start(ctx)
	}

	tokens := auth.NewTokenManager(cfg.Ops.JWTSecret, cfg.Ops.TokenTTLMinutes)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Webhook:            handlers.NewWebhookHandler(jobQueue, cfg.Queue, logger),
		Ops:                handlers.NewOpsHandler(jobQueue, failedJobs),
		Tokens:             tokens,
		WebhookSharedToken: cfg.Ops.WebhookSharedToken,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	for _, pool := range pools {
		pool.Stop(cfg.Queue.DrainTimeout())
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

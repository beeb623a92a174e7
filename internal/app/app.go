package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/repository"
	"github.com/noah-isme/mooc-session-miner/internal/service"
	"github.com/noah-isme/mooc-session-miner/internal/sessionizer"
	"github.com/noah-isme/mooc-session-miner/pkg/cache"
	"github.com/noah-isme/mooc-session-miner/pkg/config"
	"github.com/noah-isme/mooc-session-miner/pkg/database"
	"github.com/noah-isme/mooc-session-miner/pkg/storage"
)

// App holds the wired services shared by the API server and the batch CLI.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Metrics  *service.MetricsService
	Tokens   *service.TokenService
	Models   *service.CourseModelService
	Pipeline *service.PipelineService
	Runs     *service.RunService
	Exports  *service.ExportService

	publisher *repository.SessionPublisher
}

// New connects to Postgres, Redis and Kafka and builds the services. Redis is
// optional: when it cannot be reached the course model cache and run locks are
// disabled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	documents := repository.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, course model cache disabled", zap.Error(err))
		redisClient = nil
	}

	files, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logger), metrics, cfg.Pipeline.ModelCacheTTL, logger, redisClient != nil)
	courseModels := service.NewCourseModelService(documents, cacheSvc, cfg.Pipeline.ModelCacheTTL, logger)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Tokens:  service.NewTokenService(cfg.JWT.Secret),
		Models:  courseModels,
		Exports: service.NewExportService(documents, files, nil, logger),
	}

	var publisher service.SessionPublisher
	if p := repository.NewSessionPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger); p != nil {
		a.publisher = p
		publisher = p
	}

	a.Pipeline = service.NewPipelineService(courseModels, documents, publisher, metrics, service.PipelineConfig{
		Session: sessionizer.Config{
			Timeout:     cfg.Session.Timeout,
			MinDuration: cfg.Session.MinDuration,
		},
		ChunkSize: cfg.Pipeline.ChunkSize,
		Prefilter: cfg.Pipeline.Prefilter,
	}, logger)

	a.Runs = service.NewRunService(a.Pipeline, cacheSvc, metrics, validator.New(), service.RunServiceConfig{
		Workers:   cfg.Pipeline.RunWorkers,
		QueueSize: cfg.Pipeline.RunQueueSize,
	}, logger)
	return a, nil
}

// Close releases every client. Stop the run service first.
func (a *App) Close() {
	if err := a.publisher.Close(); err != nil {
		a.Logger.Warn("close kafka writer", zap.Error(err))
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.DB.Close()
}

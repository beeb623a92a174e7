package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/mooc-session-miner/api/swagger"
	"github.com/noah-isme/mooc-session-miner/internal/app"
	"github.com/noah-isme/mooc-session-miner/internal/handler"
	"github.com/noah-isme/mooc-session-miner/internal/middleware"
	"github.com/noah-isme/mooc-session-miner/pkg/config"
	"github.com/noah-isme/mooc-session-miner/pkg/logger"
	corsmiddleware "github.com/noah-isme/mooc-session-miner/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mooc-session-miner/pkg/middleware/requestid"
)

// @title MOOC Session Miner API
// @version 0.1.0
// @description Queue course runs that segment edX tracking logs into learner sessions
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to wire services", "error", err)
	}
	defer a.Close()

	a.Runs.Start(ctx)
	defer a.Runs.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/metrics"))

	deps := map[string]handler.Pinger{"postgres": a.DB}
	if a.Redis != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(a.Metrics, deps)
	runHandler := handler.NewRunHandler(a.Runs)
	exportHandler := handler.NewExportHandler(a.Exports)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(a.Tokens))
	api.POST("/runs", middleware.Audit(logr, "run.submit"), runHandler.Submit)
	api.GET("/runs", runHandler.List)
	api.GET("/runs/:id", runHandler.Get)
	api.POST("/exports", middleware.Audit(logr, "collection.export"), exportHandler.Create)
	api.GET("/metrics/pipeline", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("server shutdown", "error", err)
		}
	}()

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Errorw("server failed", "error", err)
	}
}

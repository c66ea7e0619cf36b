package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/handler"
	"github.com/noah-isme/gracetrack-api/internal/realtime"
	"github.com/noah-isme/gracetrack-api/internal/repository"
	"github.com/noah-isme/gracetrack-api/internal/service"
	"github.com/noah-isme/gracetrack-api/pkg/cache"
	"github.com/noah-isme/gracetrack-api/pkg/config"
	"github.com/noah-isme/gracetrack-api/pkg/database"
	"github.com/noah-isme/gracetrack-api/pkg/jobs"
	"github.com/noah-isme/gracetrack-api/pkg/logger"
)

// @title GraceTrack API
// @version 1.0.0
// @description Church records with dual-approval edit requests and a live change feed.
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		logr.Fatal("failed to open document store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStores()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	app, err := build(ctx, cfg, logr, stores, redisClient)
	if err != nil {
		logr.Fatal("failed to start change feed", zap.Error(err))
	}
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver, "redis", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(cfg *config.Config) (repository.Stores, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		return repository.NewMemoryStore().Stores(), func() {}, nil
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return repository.Stores{}, nil, err
	}
	return repository.NewPostgresStores(db), func() { _ = db.Close() }, nil
}

type application struct {
	router   *gin.Engine
	shutdown func()
}

func build(ctx context.Context, cfg *config.Config, logr *zap.Logger, stores repository.Stores, redisClient *redis.Client) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	var locker service.RequestLocker = repository.NewMemoryLocker()
	var bus *realtime.RedisBus
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		locker = repository.NewRedisLocker(redisClient, "gracetrack:lock:")
		bus = realtime.NewRedisBus(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cacheRepo != nil)

	snapshots := service.NewSnapshotService(stores.Records, stores.EditRequests, stores.Notifications, stores.Churches)
	hub := realtime.NewHub(snapshots, metrics, logr)
	dashboardSvc := service.NewDashboardService(stores.Records, stores.EditRequests, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	publisher := realtime.NewPublisher(hub, bus, metrics, jobs.QueueConfig{
		Workers:    cfg.Realtime.Workers,
		BufferSize: cfg.Realtime.BufferSize,
		MaxRetries: cfg.Realtime.MaxRetries,
		RetryDelay: 250 * time.Millisecond,
		Logger:     logr,
	}, dashboardSvc.HandleChange)
	stopFeed, err := publisher.Start(ctx)
	if err != nil {
		return nil, err
	}

	churchSvc := service.NewChurchService(stores.Churches, cacheSvc, stores.Audit, publisher, validate, logr, cfg.Church.CacheTTL)
	notificationSvc := service.NewNotificationService(stores.Notifications, publisher, logr)
	recordSvc := service.NewRecordService(stores.Records, stores.Audit, publisher, metrics, validate, logr)
	editRequestSvc := service.NewEditRequestService(stores.EditRequests, stores.Records, churchSvc, validate, logr,
		service.WithEditRequestNotifier(notificationSvc),
		service.WithEditRequestAudit(stores.Audit),
		service.WithEditRequestChanges(publisher),
		service.WithEditRequestLocker(locker),
		service.WithEditRequestMetrics(metrics),
		service.WithEditRequestConfig(service.EditRequestConfig{
			StrictLock:     cfg.EditRequests.StrictLock,
			LockTTL:        cfg.EditRequests.LockTTL,
			LockRetries:    cfg.EditRequests.LockRetries,
			LockRetryDelay: cfg.EditRequests.LockRetryDelay,
		}),
	)
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	checks := map[string]handler.ReadinessCheck{}
	if stores.Ping != nil {
		checks["store"] = stores.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routerDeps{
		tokens:        tokens,
		audit:         stores.Audit,
		metrics:       metrics,
		hub:           hub,
		records:       handler.NewRecordHandler(recordSvc, editRequestSvc),
		editRequests:  handler.NewEditRequestHandler(editRequestSvc),
		church:        handler.NewChurchHandler(churchSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		dashboard:     handler.NewDashboardHandler(dashboardSvc),
		observability: handler.NewMetricsHandler(metrics, checks),
	})
	return &application{router: router, shutdown: stopFeed}, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"task-manager/api/internal/cache"
	"task-manager/api/internal/config"
	"task-manager/api/internal/database"
	"task-manager/api/internal/handlers"
	"task-manager/api/internal/logging"
	"task-manager/api/internal/middleware"
	"task-manager/api/internal/monitoring"
	"task-manager/api/internal/repositories"
	"task-manager/api/internal/services"

	"github.com/charmbracelet/log"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	gormlogger "gorm.io/gorm/logger"
)

type application struct {
	cfg     *config.Config
	logger  *log.Logger
	pool    *database.DatabasePool
	cache   *cache.MultiLevelCache
	tasks   *services.CachedTaskService
	monitor *monitoring.Monitor
	router  *gin.Engine
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", "err", err)
	}

	logger := logging.New(os.Stderr, logging.Options{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		Prefix:          "task-manager",
		ReportTimestamp: true,
	})

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start application", "err", err)
	}

	if err := app.tasks.WarmCache(ctx); err != nil {
		logger.Warn("Cache warm-up failed", "err", err)
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", "err", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownTimeout, app.shutdownOperations(srv))

	exitCode := <-wait
	logger.Info("Application exited", "code", exitCode)
	os.Exit(exitCode)
}

// newApplication wires storage, cache, services and routes. Redis is optional:
// when it is disabled or unreachable the cache runs on its in-process level only.
func newApplication(ctx context.Context, cfg *config.Config, logger *log.Logger) (*application, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	gormLevel := gormlogger.Warn
	if logging.ParseLevel(cfg.Log.Level) == log.DebugLevel {
		gormLevel = gormlogger.Info
	}
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        gormLevel,
		Writer:          logger.WithPrefix("gorm"),
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(pool.DB); err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Database.Seed {
		n, err := database.Seed(ctx, pool.DB, time.Now())
		if err != nil {
			pool.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("Seeded sample tasks", "count", n)
		}
	}

	taskCache := cache.NewMultiLevelCache(connectRedis(ctx, cfg, logger), &cache.MultiLevelConfig{
		L1MaxEntries: cfg.Cache.L1MaxEntries,
		L1TTL:        cfg.Cache.L1TTL,
		CircuitBreaker: &cache.CircuitBreakerConfig{
			MaxFailures:      cfg.Cache.BreakerMaxFailures,
			Timeout:          cfg.Cache.BreakerTimeout,
			HalfOpenMaxCalls: cfg.Cache.BreakerHalfOpenCalls,
		},
	})

	repo := repositories.NewGormTaskRepository(pool.DB, nil)
	tasks := services.NewCachedTaskService(
		services.NewTaskService(repo),
		taskCache,
		services.CacheTTLs{Task: cfg.Cache.TaskTTL, List: cfg.Cache.ListTTL, Stats: cfg.Cache.StatsTTL},
		logger.WithPrefix("cache"),
	)

	monitor := monitoring.NewMonitor()
	monitor.RegisterHealthCheck("database", pool.Health)
	monitor.RegisterOptionalCheck("cache", taskCache.Health)
	monitor.RegisterMetricsSource("database", func() interface{} { return pool.Stats() })
	monitor.RegisterMetricsSource("cache", func() interface{} { return tasks.GetCacheStats() })

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.RecoveryWithLog(logger),
		monitor.Middleware(),
		middleware.CORS(cfg.CORS),
	)
	monitor.RegisterRoutes(router)

	api := router.Group("")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	}
	handlers.NewTaskHandler(tasks, logger).RegisterRoutes(api)

	return &application{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		cache:   taskCache,
		tasks:   tasks,
		monitor: monitor,
		router:  router,
	}, nil
}

// connectRedis returns nil when Redis is disabled or does not answer a ping.
func connectRedis(ctx context.Context, cfg *config.Config, logger *log.Logger) cache.Cache {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, using in-process cache only")
		return nil
	}

	redisCache := cache.NewRedisCache(&cache.CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		Prefix:       cfg.Redis.Prefix,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Health(pingCtx); err != nil {
		logger.Warn("Redis unavailable, using in-process cache only", "addr", cfg.GetRedisAddr(), "err", err)
		redisCache.Close()
		return nil
	}

	logger.Info("Connected to Redis", "addr", cfg.GetRedisAddr())
	return redisCache
}

// shutdownOperations drains HTTP before closing the stores it depends on.
func (a *application) shutdownOperations(srv *http.Server) map[string]gfshutdown.Operation {
	return map[string]gfshutdown.Operation{
		"task-manager": func(ctx context.Context) error {
			a.logger.Info("Shutting down HTTP server")
			httpErr := srv.Shutdown(ctx)
			return errors.Join(httpErr, a.close())
		},
	}
}

func (a *application) close() error {
	return errors.Join(a.cache.Close(), a.pool.Close())
}

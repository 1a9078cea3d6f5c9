package bootstrap

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/database"
	"github.com/docchat/backend-go/internal/di"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/queue"
	"github.com/docchat/backend-go/internal/worker"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	cancel       context.CancelFunc
}

// Init bootstraps configuration, logger, database connections, the DI
// container and the embedding worker pool.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load dynamic configuration first, the logger needs env and level.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.GetAppConfig()

	if err := logger.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		return nil, err
	}

	// Hot reload: validated config changes are swapped in, components read
	// the new values on their next construction.
	config.WatchConfig(func(newCfg *config.Config) {
		logger.Info("configuration reloaded",
			zap.Int("chunk_size", newCfg.Retrieval.ChunkSize),
			zap.Float64("min_score", newCfg.Retrieval.MinScore))
	})

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{cancel: cancel}

	// Initialize database.
	if _, err := database.InitDB(); err != nil {
		cancel()
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	// Initialize Redis (optional). Failure shouldn't block the app.
	if cfg.Redis.Enabled {
		if _, err := database.InitRedis(); err != nil {
			logger.Warn("Failed to initialize Redis", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
		}
	}

	// Background database monitoring.
	if sqlDB, err := database.DB.DB(); err == nil {
		logrusLogger := &logrus.Logger{
			Out:       os.Stdout,
			Formatter: &logrus.JSONFormatter{},
			Level:     logrus.InfoLevel,
		}
		healthChecker := database.NewHealthChecker(sqlDB, logrusLogger)
		healthChecker.Start(ctx)
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			healthChecker.Stop()
			return nil
		})

		metricsCollector := database.NewMetricsCollector(sqlDB, logrusLogger)
		go metricsCollector.Start(ctx)
	}

	// Wire the retrieval pipeline through the DI container.
	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		cancel()
		return nil, err
	}

	// Start the embedding worker pool.
	err := di.Invoke(func(pool *worker.Pool, tasks queue.TaskQueue) {
		pool.Start(ctx)
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			pool.Stop()
			return tasks.Close()
		})
	})
	if err != nil {
		cancel()
		return nil, err
	}

	logger.Info("application bootstrapped",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.String("vector_store", cfg.Retrieval.VectorStore.Provider))

	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	logger.Sync()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tempusgeo/TempusGeo-Server/internal/client"
	"github.com/tempusgeo/TempusGeo-Server/internal/config"
	"github.com/tempusgeo/TempusGeo-Server/internal/health"
	"github.com/tempusgeo/TempusGeo-Server/internal/metrics"
	"github.com/tempusgeo/TempusGeo-Server/internal/server"
	"github.com/tempusgeo/TempusGeo-Server/internal/service"
	"github.com/tempusgeo/TempusGeo-Server/internal/storage/disk"
	"github.com/tempusgeo/TempusGeo-Server/internal/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// A local .env is optional; real deployments set the environment.
	godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("archive_enabled", cfg.Archive.Enabled))

	clock := util.SystemClock{}
	m := metrics.NewMetrics()

	diskStore, err := disk.NewStore(cfg.Storage.DataDir, clock, logger)
	if err != nil {
		logger.Fatal("failed to initialize disk store", zap.Error(err))
	}

	cache := service.NewCacheService()
	archive := client.NewArchiveClient(&client.ArchiveConfig{
		BaseURL:         cfg.Archive.BaseURL,
		FetchTimeout:    cfg.Archive.FetchTimeout,
		SnapshotTimeout: cfg.Archive.SnapshotTimeout,
		CacheTTL:        cfg.Archive.CacheTTL,
	}, clock, m, logger)

	store := service.NewStoreService(diskStore, cache, archive, clock, m, logger)
	retention := service.NewRetentionService(store, diskStore, cache, m, logger)

	// Reconciliation runs once, synchronously, before anything serves.
	if cfg.Archive.Enabled {
		reconciler := service.NewReconcileService(diskStore, cache, archive, m, logger)
		if restored := reconciler.Run(context.Background()); restored {
			logger.Info("local tree restored from archive")
		}
	} else {
		logger.Info("archive disabled, skipping reconciliation")
	}

	store.Warmup()
	m.SetLastWriteTime(diskStore.LastWriteTime())

	healthCheck := health.NewHealthCheck(diskStore, logger)
	healthCheck.SetReady()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Retention.Enabled {
		go retention.Run(ctx, cfg.Retention.SweepInterval)
	}

	srv := server.NewServer(cfg, store, retention, healthCheck, clock, m, logger)
	srv.SetupRoutes()

	var metricsSrv *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsSrv = server.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", zap.Error(err))
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}

// initLogger initializes the zap logger.
func initLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	return config.Build()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Skufu/vitalsense/internal/analysis"
	"github.com/Skufu/vitalsense/internal/api"
	"github.com/Skufu/vitalsense/internal/config"
	"github.com/Skufu/vitalsense/internal/gemini"
	"github.com/Skufu/vitalsense/internal/logger"
	"github.com/Skufu/vitalsense/internal/metrics"
	"github.com/Skufu/vitalsense/internal/sensor"
)

const serviceName = "vitalsense"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New("vitalsense")
	cache := sensor.NewCache()

	var db api.HealthChecker
	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		db = pool
	}

	var (
		ingestion api.IngestionStatus
		wg        sync.WaitGroup
	)
	if cfg.Sensor.Enabled {
		ing := newIngestor(cfg.Sensor, cache, m, lg)
		ingestion = ing
		wg.Add(1)
		go func() {
			defer wg.Done()
			ing.Run(ctx)
		}()
	} else {
		lg.Info("sensor ingestion disabled")
	}

	var model analysis.Model
	if cfg.ModelEnabled() {
		model = gemini.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name, lg)
	} else {
		lg.Warn("GEMINI_API_KEY not set; /analyze will report failures")
	}

	router := api.NewRouter(api.Options{
		DB:             db,
		StaticRoot:     api.DetectStaticRoot(),
		Analyzer:       analysis.NewService(model, cfg.Model.Timeout, m, lg),
		Sensors:        cache,
		Ingestion:      ingestion,
		Metrics:        m,
		Logger:         lg,
		AnalyzeDelay:   cfg.AnalyzeDelay,
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Analysis may wait on the model for the full timeout plus pacing.
		WriteTimeout: cfg.Model.Timeout + cfg.AnalyzeDelay + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	lg.Info("server listening", zap.String("port", cfg.Port))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	lg.Info("shutting down server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("graceful shutdown failed", zap.Error(err))
	}

	cancel()
	wg.Wait()
	return runErr
}

func newIngestor(cfg config.SensorConfig, cache *sensor.Cache, m *metrics.Metrics, lg *zap.Logger) *sensor.Ingestor {
	opener := sensor.SerialOpener{Baud: cfg.Baud, ReadTimeout: cfg.PollInterval}
	locator := sensor.NewDeviceLocator(cfg.Port, cfg.Identifiers, opener.Probe, lg)
	return sensor.NewIngestor(cache, locator, opener, sensor.IngestorConfig{
		ReconnectDelay: cfg.ReconnectDelay,
		PollInterval:   cfg.PollInterval,
		IdleTimeout:    cfg.IdleTimeout,
	}, m, lg)
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

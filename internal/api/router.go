package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Skufu/vitalsense/internal/analysis"
	"github.com/Skufu/vitalsense/internal/metrics"
	"github.com/Skufu/vitalsense/internal/sensor"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, vitals *sensor.Reading) (analysis.Result, error)
}

type SensorSource interface {
	Snapshot() sensor.Reading
	UpdatedAt() time.Time
}

type IngestionStatus interface {
	Status() sensor.Status
}

type Options struct {
	// DB is nil when the database is disabled.
	DB         HealthChecker
	StaticRoot string

	Analyzer Analyzer
	Sensors  SensorSource
	// Ingestion is nil when sensor ingestion is disabled.
	Ingestion IngestionStatus

	Metrics *metrics.Metrics
	Logger  *zap.Logger

	AnalyzeDelay   time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
}

func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger.Named("http")
	h := &handler{
		analyzer:  opts.Analyzer,
		sensors:   opts.Sensors,
		ingestion: opts.Ingestion,
		delay:     opts.AnalyzeDelay,
		logger:    logger,
	}

	router := gin.New()
	router.Use(
		requestID(),
		accessLog(logger),
		recovery(logger),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	if opts.StaticRoot != "" {
		router.StaticFile("/", filepath.Join(opts.StaticRoot, "index.html"))
		router.Static("/static", opts.StaticRoot)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		if opts.DB == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := opts.DB.Ping(ctx); err != nil {
			dbStatus = fmt.Sprintf("unhealthy: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     dbStatus,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"db":     dbStatus,
		})
	})

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	limiter := rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst)
	router.POST("/analyze", rateLimit(limiter), h.analyze)
	router.GET("/sensor_data", h.sensorData)
	router.GET("/sensor_status", h.sensorStatus)

	return router
}

// DetectStaticRoot looks for a web/index.html frontend in the working
// directory and up to two parents. It returns "" when there is none.
func DetectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		web := filepath.Join(dir, "web")
		if fileExists(filepath.Join(web, "index.html")) {
			return web
		}
	}

	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

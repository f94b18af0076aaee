package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	GinMode     string `envconfig:"GIN_MODE" default:"release"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	EnableDB    bool   `envconfig:"ENABLE_DB" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Model  ModelConfig
	Sensor SensorConfig

	// AnalyzeDelay keeps the frontend loading overlay visible; zero disables it.
	AnalyzeDelay   time.Duration `envconfig:"ANALYZE_DELAY" default:"0s"`
	RateLimitRPS   float64       `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
}

type ModelConfig struct {
	APIKey  string        `envconfig:"GEMINI_API_KEY"`
	Name    string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	BaseURL string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	Timeout time.Duration `envconfig:"MODEL_TIMEOUT" default:"30s"`
}

type SensorConfig struct {
	Enabled        bool          `envconfig:"SENSOR_ENABLED" default:"true"`
	Port           string        `envconfig:"SERIAL_PORT"`
	Baud           int           `envconfig:"SERIAL_BAUD" default:"9600"`
	Identifiers    []string      `envconfig:"SERIAL_IDENTIFIERS" default:"Arduino,CH340"`
	ReconnectDelay time.Duration `envconfig:"SENSOR_RECONNECT_DELAY" default:"5s"`
	PollInterval   time.Duration `envconfig:"SENSOR_POLL_INTERVAL" default:"100ms"`
	IdleTimeout    time.Duration `envconfig:"SENSOR_IDLE_TIMEOUT" default:"30s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if cfg.Sensor.Baud <= 0 {
		return nil, fmt.Errorf("SERIAL_BAUD must be positive, got %d", cfg.Sensor.Baud)
	}
	if cfg.Sensor.ReconnectDelay <= 0 || cfg.Sensor.PollInterval <= 0 {
		return nil, fmt.Errorf("sensor delays must be positive")
	}
	if cfg.Model.Timeout <= 0 {
		return nil, fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", cfg.Model.Timeout)
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return &cfg, nil
}

// ModelEnabled reports whether an API key was supplied for the language model.
func (c *Config) ModelEnabled() bool {
	return c.Model.APIKey != ""
}

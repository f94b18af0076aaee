package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Skufu/vitalsense/internal/config"
	"github.com/Skufu/vitalsense/internal/metrics"
	"github.com/Skufu/vitalsense/internal/sensor"
)

func TestConnectDBRejectsBadURL(t *testing.T) {
	pool, err := connectDB(context.Background(), "://not-a-url")
	if err == nil {
		pool.Close()
		t.Fatal("expected an error for a malformed database url")
	}
	assert.Contains(t, err.Error(), "parse db url")
}

func TestNewIngestorStartsDisconnected(t *testing.T) {
	ing := newIngestor(config.SensorConfig{
		Baud:           9600,
		Identifiers:    []string{"Arduino"},
		ReconnectDelay: time.Second,
		PollInterval:   100 * time.Millisecond,
		IdleTimeout:    30 * time.Second,
	}, sensor.NewCache(), metrics.New("test"), zap.NewNop())

	assert.Equal(t, sensor.Disconnected, ing.State())
	assert.Equal(t, "disconnected", ing.Status().State)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Port:           "0",
		RateLimitRPS:   1,
		RateLimitBurst: 1,
		Model:          config.ModelConfig{Timeout: time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Skufu/vitalsense/internal/metrics"
	"github.com/Skufu/vitalsense/internal/sensor"
)

var (
	// ErrModelUnavailable means no language model is configured at all.
	ErrModelUnavailable = errors.New("language model is not configured")
	ErrEmptyResponse    = errors.New("empty response from model")
)

// Model is a generative language model that answers a prompt with free text.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	model   Model
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService builds the analysis service. model may be nil, in which case
// every Analyze call reports ErrModelUnavailable.
func NewService(model Model, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Service {
	logger = logger.Named("analysis")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "language-model",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// The caller going away says nothing about the model's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Service{
		model:   model,
		breaker: breaker,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Analyze produces a report for req using the given sensor snapshot, which is
// nil when no live reading exists. It makes at most one model call. Model
// failures of any kind are absorbed into the fallback record; the only error
// returned is ErrModelUnavailable.
func (s *Service) Analyze(ctx context.Context, req Request, vitals *sensor.Reading) (Result, error) {
	if s.model == nil {
		s.metrics.Analyses.WithLabelValues("unavailable").Inc()
		return Result{}, ErrModelUnavailable
	}

	prompt, err := BuildPrompt(req, vitals)
	if err != nil {
		s.logger.Error("failed to build prompt", zap.Error(err))
		s.metrics.Analyses.WithLabelValues("fallback").Inc()
		return Fallback(), nil
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("model call failed, serving fallback", zap.Error(err))
		s.metrics.Analyses.WithLabelValues("fallback").Inc()
		return Fallback(), nil
	}

	res, err := normalize(text)
	if err != nil {
		s.logger.Warn("model output unusable, serving fallback", zap.Error(err), zap.Int("length", len(text)))
		s.metrics.Analyses.WithLabelValues("fallback").Inc()
		return res, nil
	}

	s.metrics.Analyses.WithLabelValues("model").Inc()
	return res, nil
}

type reply struct {
	text string
	err  error
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		s.metrics.ModelLatency.Observe(time.Since(start).Seconds())
	}()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		ch := make(chan reply, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- reply{err: fmt.Errorf("model panicked: %v", r)}
				}
			}()
			text, err := s.model.Generate(callCtx, prompt)
			ch <- reply{text: text, err: err}
		}()

		select {
		case r := <-ch:
			if r.err != nil {
				return nil, r.err
			}
			if strings.TrimSpace(r.text) == "" {
				return nil, ErrEmptyResponse
			}
			return r.text, nil
		case <-callCtx.Done():
			return nil, fmt.Errorf("model call: %w", callCtx.Err())
		}
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

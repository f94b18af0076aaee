package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// Sensor ingestion
	FramesAccepted  prometheus.Counter
	FramesRejected  prometheus.Counter
	Reconnects      prometheus.Counter
	SensorConnected prometheus.Gauge

	// Analysis
	Analyses     *prometheus.CounterVec
	ModelLatency prometheus.Histogram
}

// New creates all collectors on a private registry so several instances can
// coexist (tests, multiple servers in one process).
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "frames_accepted_total",
			Help:      "Serial frames decoded and merged into the sensor cache",
		}),
		FramesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "frames_rejected_total",
			Help:      "Serial frames discarded as malformed telemetry",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "reconnects_total",
			Help:      "Times the serial connection was torn down after a transport failure",
		}),
		SensorConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "connected",
			Help:      "1 while a serial device is connected",
		}),
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analyses by outcome (model, fallback, unavailable)",
		}, []string{"outcome"}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "model_latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package metrics exposes Prometheus instrumentation for the embedding service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MetricsNamespace         = "facenet"
	MetricsSubsystemSystem   = "system"
	MetricsSubsystemHTTP     = "http"
	MetricsSubsystemAPI      = "api"
	MetricsSubsystemPipeline = "pipeline"

	MetricsVersionLabel = "version"
)

// Pipeline stages.
const (
	StageDecode     = "decode"
	StagePreprocess = "preprocess"
	StageInference  = "inference"
)

// Error kinds.
const (
	ErrorValidation = "validation"
	ErrorDecode     = "decode"
	ErrorInference  = "inference"
	ErrorOther      = "other"
)

// Metrics is the instrumentation surface used by handlers and middleware.
type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)
	IncrementHTTPRequests(handler, statusCode string)

	ObserveStageDuration(stage string, elapsed float64)
	IncrementEmbeddings()
	IncrementErrors(kind string)
}

type metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge
	info      prometheus.Gauge

	apiTime           *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec

	stageTime       *prometheus.HistogramVec
	embeddingsTotal prometheus.Counter
	errorsTotal     *prometheus.CounterVec
}

// NewMetrics creates a collector backed by its own registry.
func NewMetrics(version string) Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "start_timestamp_seconds",
		Help:      "The time the server started.",
	})
	m.startTime.SetToCurrentTime()
	m.registry.MustRegister(m.startTime)

	m.info = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSystem,
		Name:        "info",
		Help:        "The server version.",
		ConstLabels: prometheus.Labels{MetricsVersionLabel: version},
	})
	m.info.Set(1)
	m.registry.MustRegister(m.info)

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemAPI,
			Name:      "time_seconds",
			Help:      "Time to execute the api handler",
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	}, []string{"handler", "status_code"})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.stageTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemPipeline,
			Name:      "stage_seconds",
			Help:      "Time spent in each embedding pipeline stage.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"stage"},
	)
	m.registry.MustRegister(m.stageTime)

	m.embeddingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemPipeline,
		Name:      "embeddings_total",
		Help:      "The total number of embeddings generated.",
	})
	m.registry.MustRegister(m.embeddingsTotal)

	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemPipeline,
		Name:      "errors_total",
		Help:      "The total number of failed embedding requests by kind.",
	}, []string{"kind"})
	m.registry.MustRegister(m.errorsTotal)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	if m != nil {
		m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementHTTPRequests(handler, statusCode string) {
	if m != nil {
		m.httpRequestsTotal.With(prometheus.Labels{"handler": handler, "status_code": statusCode}).Inc()
	}
}

func (m *metrics) ObserveStageDuration(stage string, elapsed float64) {
	if m != nil {
		m.stageTime.With(prometheus.Labels{"stage": stage}).Observe(elapsed)
	}
}

func (m *metrics) IncrementEmbeddings() {
	if m != nil {
		m.embeddingsTotal.Inc()
	}
}

func (m *metrics) IncrementErrors(kind string) {
	if m != nil {
		m.errorsTotal.With(prometheus.Labels{"kind": kind}).Inc()
	}
}

type errorLogger struct{}

func (errorLogger) Println(v ...interface{}) {
	log.Warn().Interface("details", v).Msg("metric server error")
}

// NewMetricsHandler creates an HTTP handler to expose metrics.
func NewMetricsHandler(m Metrics) http.Handler {
	return promhttp.HandlerFor(m.GetRegistry(), promhttp.HandlerOpts{
		ErrorLog: errorLogger{},
	})
}

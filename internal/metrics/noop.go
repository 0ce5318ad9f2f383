package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NoopMetrics discards every observation.
type NoopMetrics struct{}

// NewNoopMetrics creates a new instance of NoopMetrics.
func NewNoopMetrics() Metrics {
	return &NoopMetrics{}
}

// GetRegistry returns a new empty registry.
func (m *NoopMetrics) GetRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func (m *NoopMetrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {}

func (m *NoopMetrics) IncrementHTTPRequests(handler, statusCode string) {}

func (m *NoopMetrics) ObserveStageDuration(stage string, elapsed float64) {}

func (m *NoopMetrics) IncrementEmbeddings() {}

func (m *NoopMetrics) IncrementErrors(kind string) {}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test").(*metrics)

	m.IncrementEmbeddings()
	m.IncrementEmbeddings()
	m.IncrementErrors(ErrorDecode)
	m.IncrementHTTPRequests("generate-embedding", "200")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.embeddingsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errorsTotal.WithLabelValues(ErrorDecode)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.errorsTotal.WithLabelValues(ErrorInference)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("generate-embedding", "200")))
}

func TestMetrics_Histograms(t *testing.T) {
	m := NewMetrics("test").(*metrics)

	m.ObserveStageDuration(StageInference, 0.02)
	m.ObserveAPIEndpointDuration("home", "GET", "200", 0.001)

	assert.Equal(t, 1, testutil.CollectAndCount(m.stageTime))
	assert.Equal(t, 1, testutil.CollectAndCount(m.apiTime))
}

func TestNewMetricsHandler(t *testing.T) {
	m := NewMetrics("1.2.3")
	m.IncrementEmbeddings()

	rr := httptest.NewRecorder()
	NewMetricsHandler(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "facenet_pipeline_embeddings_total 1")
	assert.Contains(t, string(body), `facenet_system_info{version="1.2.3"} 1`)
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()

	assert.NotPanics(t, func() {
		m.IncrementEmbeddings()
		m.IncrementErrors(ErrorOther)
		m.IncrementHTTPRequests("home", "200")
		m.ObserveStageDuration(StageDecode, 1)
		m.ObserveAPIEndpointDuration("home", "GET", "200", 1)
	})
	assert.NotNil(t, m.GetRegistry())
}

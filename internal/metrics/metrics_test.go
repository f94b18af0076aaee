package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesPrivateRegistry(t *testing.T) {
	a := New("one")
	b := New("one")

	a.FramesAccepted.Inc()
	a.Analyses.WithLabelValues("model").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.FramesAccepted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesAccepted))

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "one_sensor_frames_accepted_total")
	assert.Contains(t, names, "one_analysis_requests_total")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New("vs")
	m.SensorConnected.Set(1)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vs_sensor_connected 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Skufu/vitalsense/internal/metrics"
	"github.com/Skufu/vitalsense/internal/sensor"
)

type fakeModel struct {
	mu      sync.Mutex
	text    string
	err     error
	block   bool
	panics  bool
	calls   int
	prompts []string
}

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.panics {
		panic("sdk bug")
	}
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.text, m.err
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestService(model Model, timeout time.Duration) *Service {
	return NewService(model, timeout, metrics.New("test"), zap.NewNop())
}

var sampleRequest = Request{
	Name:     "Ana",
	Symptoms: []string{"fever", "cough", "fever"},
	Age:      "34",
	Gender:   "female",
}

func TestAnalyzeNormalizesModelOutput(t *testing.T) {
	model := &fakeModel{text: `Here you go: {"diseases":[{"name":"Flu","confidence":70,"description":"Viral"}],"treatments":["Rest"]}`}
	svc := newTestService(model, time.Second)

	res, err := svc.Analyze(context.Background(), sampleRequest, &sensor.Reading{HeartRate: 98, Temperature: 38.4})

	require.NoError(t, err)
	assert.Equal(t, 1, model.callCount())
	assert.Equal(t, "Flu", res.Diseases[0].Name)
	assert.Equal(t, []string{"Rest"}, res.Treatments)
	assert.Contains(t, model.prompts[0], "Heart Rate: 98 BPM")
	assert.Contains(t, model.prompts[0], "Body Temperature: 38.4°C")
}

func TestAnalyzeReturnsFallbackOnModelFailure(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "error", model: &fakeModel{err: errors.New("quota exceeded")}},
		{name: "empty", model: &fakeModel{text: ""}},
		{name: "blank", model: &fakeModel{text: "  \n "}},
		{name: "panic", model: &fakeModel{panics: true}},
		{name: "garbage", model: &fakeModel{text: "no json at all"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.model, time.Second)

			res, err := svc.Analyze(context.Background(), sampleRequest, &sensor.Reading{})

			require.NoError(t, err)
			assert.Equal(t, Fallback(), res)
			assert.Equal(t, 1, tt.model.callCount())
		})
	}
}

func TestAnalyzeTimeoutServesFallback(t *testing.T) {
	model := &fakeModel{block: true}
	svc := newTestService(model, 20*time.Millisecond)

	start := time.Now()
	res, err := svc.Analyze(context.Background(), sampleRequest, &sensor.Reading{})

	require.NoError(t, err)
	assert.Equal(t, Fallback(), res)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnalyzeWithoutModel(t *testing.T) {
	svc := newTestService(nil, time.Second)

	_, err := svc.Analyze(context.Background(), sampleRequest, &sensor.Reading{})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestAnalyzeBreakerStopsCallingFailingModel(t *testing.T) {
	model := &fakeModel{err: errors.New("503 from upstream")}
	svc := newTestService(model, time.Second)

	for n := 0; n < 8; n++ {
		res, err := svc.Analyze(context.Background(), sampleRequest, &sensor.Reading{})
		require.NoError(t, err)
		assert.Equal(t, Fallback(), res)
	}

	assert.Equal(t, 5, model.callCount())
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(sampleRequest, &sensor.Reading{HeartRate: 72, Temperature: 36.6, Moisture: 40})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Patient: Ana")
	assert.Contains(t, prompt, "Age: 34")
	assert.Contains(t, prompt, "Gender: female")
	assert.Contains(t, prompt, "Heart Rate: 72 BPM")
	assert.Contains(t, prompt, "Body Temperature: 36.6°C")
	assert.Contains(t, prompt, "Body Moisture Level: 40%")
	assert.Contains(t, prompt, "Based on both the symptoms and vital signs")
	assert.Contains(t, prompt, "(consider abnormal vital signs)")
	assert.Contains(t, prompt, "Reported Symptoms: fever, cough\n")
	assert.Contains(t, prompt, `"seek_medical_attention": true`)
	assert.Equal(t, 1, strings.Count(prompt, "fever"))
}

func TestBuildPromptParagraphMode(t *testing.T) {
	req := Request{
		Name:     "Ben",
		Symptoms: []string{"I have had a pounding headache since yesterday and light hurts my eyes."},
		Mode:     ModeParagraph,
	}

	prompt, err := BuildPrompt(req, nil)
	require.NoError(t, err)

	assert.Contains(t, prompt, "Reported Symptoms: I have had a pounding headache since yesterday and light hurts my eyes.\n")
	assert.Contains(t, prompt, "Age: Not provided")
	assert.Contains(t, prompt, "Gender: Not provided")
}

func TestBuildPromptWithoutVitals(t *testing.T) {
	prompt, err := BuildPrompt(Request{Name: "Ana", Symptoms: []string{"fever"}}, nil)
	require.NoError(t, err)

	assert.Contains(t, prompt, "Reported Symptoms: fever\n")
	assert.Contains(t, prompt, "Based on these symptoms,")
	assert.NotContains(t, prompt, "Vital Signs")
	assert.NotContains(t, prompt, "Heart Rate")
	assert.NotContains(t, prompt, "Body Temperature")
	assert.NotContains(t, prompt, "sensor data")
	assert.NotContains(t, prompt, "consider abnormal vital signs")
	assert.NotContains(t, prompt, "vital signs")
	assert.Contains(t, prompt, "   - Specific risk factors for this patient's age and gender\n3. Specific treatment recommendations\n")
}

func TestUniqueSymptoms(t *testing.T) {
	req := Request{Symptoms: []string{" fever", "cough", "fever ", "", "  ", "Cough"}}
	assert.Equal(t, []string{"fever", "cough", "Cough"}, req.UniqueSymptoms())
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Skufu/vitalsense/internal/analysis"
	"github.com/Skufu/vitalsense/internal/sensor"
)

const (
	msgInvalidInput   = "Invalid input"
	msgTooManySymptom = "Maximum 7 symptoms allowed"
	msgAnalysisFailed = "Analysis failed"
	msgServerError    = "Server error occurred"
)

type handler struct {
	analyzer  Analyzer
	sensors   SensorSource
	ingestion IngestionStatus
	delay     time.Duration
	logger    *zap.Logger
}

func (h *handler) analyze(c *gin.Context) {
	var req analysis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return
	}
	if len(req.UniqueSymptoms()) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidInput})
		return
	}

	if h.delay > 0 {
		t := time.NewTimer(h.delay)
		select {
		case <-t.C:
		case <-c.Request.Context().Done():
			t.Stop()
			return
		}
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), req, h.liveVitals())
	if err != nil {
		if errors.Is(err, analysis.ErrModelUnavailable) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgAnalysisFailed})
			return
		}
		h.logger.Error("analysis failed", zap.Error(err), zap.String("request_id", c.GetString(contextRequestID)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgServerError})
		return
	}

	c.JSON(http.StatusOK, result)
}

// liveVitals returns the cached reading, or nil when ingestion is disabled or
// no frame has arrived since startup.
func (h *handler) liveVitals() *sensor.Reading {
	if h.ingestion == nil || h.sensors.UpdatedAt().IsZero() {
		return nil
	}
	r := h.sensors.Snapshot()
	return &r
}

func (h *handler) sensorData(c *gin.Context) {
	c.JSON(http.StatusOK, h.sensors.Snapshot())
}

func (h *handler) sensorStatus(c *gin.Context) {
	if h.ingestion == nil {
		c.JSON(http.StatusOK, gin.H{"state": "disabled"})
		return
	}
	c.JSON(http.StatusOK, h.ingestion.Status())
}

// bindErrorMessage maps a binding failure to the client-facing message. The
// symptom limit only gets its own message when it is the sole problem.
func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgInvalidInput
	}

	tooMany := false
	for _, fe := range verrs {
		if fe.Field() == "Symptoms" && fe.Tag() == "max" {
			tooMany = true
			continue
		}
		return msgInvalidInput
	}
	if tooMany {
		return msgTooManySymptom
	}
	return msgInvalidInput
}

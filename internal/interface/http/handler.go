package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
	"github.com/yanqian/solar-forecast/pkg/metrics"
)

// QuotaReporter exposes the call budget for monitoring.
type QuotaReporter interface {
	Stats(ctx context.Context) quota.Stats
	History() []quota.CallRecord
}

// Handler wires the HTTP transport to the forecast service.
type Handler struct {
	forecastSvc forecast.Service
	quota       QuotaReporter
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(forecastSvc forecast.Service, quota QuotaReporter, recorder *metrics.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		forecastSvc: forecastSvc,
		quota:       quota,
		metrics:     recorder,
		logger:      logger.With("component", "http.handler"),
	}
}

type forecastQuery struct {
	StartDate  string   `form:"start_date"`
	EndDate    string   `form:"end_date"`
	Latitude   *float64 `form:"lat"`
	Longitude  *float64 `form:"lon"`
	UseWeather *bool    `form:"use_weather"`
	ForceFresh bool     `form:"force_fresh"`
}

// Health reports liveness and whether a model is loaded.
func (h *Handler) Health(c *gin.Context) {
	_, loaded := h.forecastSvc.ModelInfo()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model_loaded": loaded})
}

// GetForecast runs a forecast from query parameters.
func (h *Handler) GetForecast(c *gin.Context) {
	var q forecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	h.respondForecast(c, forecast.Request{
		StartDate:  q.StartDate,
		EndDate:    q.EndDate,
		Latitude:   q.Latitude,
		Longitude:  q.Longitude,
		UseWeather: q.UseWeather,
		ForceFresh: q.ForceFresh,
	})
}

// CreateForecast runs a forecast from a JSON body.
func (h *Handler) CreateForecast(c *gin.Context) {
	var req forecast.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	h.respondForecast(c, req)
}

func (h *Handler) respondForecast(c *gin.Context, req forecast.Request) {
	if claims, ok := getClaims(c); ok {
		h.logger.Info("forecast requested", "subject", claims.Subject, "start_date", req.StartDate, "end_date", req.EndDate)
	}
	res := h.forecastSvc.Forecast(c.Request.Context(), req)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
		if res.ErrorCode == apperrors.CodeInvalidInput {
			status = http.StatusBadRequest
		}
	}
	c.JSON(status, res)
}

// Quota reports the external call budget and cache counters.
func (h *Handler) Quota(c *gin.Context) {
	history := h.quota.History()
	c.JSON(http.StatusOK, gin.H{
		"api_stats":    h.quota.Stats(c.Request.Context()),
		"history_size": len(history),
		"recent_calls": tail(history, 10),
		"caches":       h.metrics.CacheSnapshot(),
	})
}

// Model describes the loaded model.
func (h *Handler) Model(c *gin.Context) {
	info, ok := h.forecastSvc.ModelInfo()
	if !ok {
		abortWithError(c, apperrors.Wrap(apperrors.CodeModel, "model not loaded", nil))
		return
	}
	c.JSON(http.StatusOK, info)
}

func tail(records []quota.CallRecord, n int) []quota.CallRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

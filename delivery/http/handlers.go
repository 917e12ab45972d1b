package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
	"github.com/isectech/hospital-threat-engine/usecase"
)

// Limits for the recent classifications listing
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 1000
)

// ReadinessCheck reports whether one dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handlers serves the classification and model management API
type Handlers struct {
	classify  *usecase.ClassifyEventUseCase
	models    *usecase.ModelManagementUseCase
	codec     *snapshot.Codec
	checks    map[string]ReadinessCheck
	info      types.ServiceInfo
	logger    *logging.Logger
	startTime time.Time
}

// NewHandlers creates the API handlers. checks are run by the readiness probe.
func NewHandlers(
	classify *usecase.ClassifyEventUseCase,
	models *usecase.ModelManagementUseCase,
	codec *snapshot.Codec,
	checks map[string]ReadinessCheck,
	info types.ServiceInfo,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if checks == nil {
		checks = map[string]ReadinessCheck{}
	}
	return &Handlers{
		classify:  classify,
		models:    models,
		codec:     codec,
		checks:    checks,
		info:      info,
		logger:    logger.WithComponent("http_handlers"),
		startTime: time.Now(),
	}
}

// Classify classifies one RawEvent
func (h *Handlers) Classify(c *gin.Context) {
	var event entity.RawEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		abortWithError(c, common.NewAppErrorWithDetails(common.ErrCodeInvalidFormat, "invalid request body", err.Error()))
		return
	}

	resp, err := h.classify.Execute(c.Request.Context(), &usecase.ClassifyEventRequest{
		Event:          &event,
		RequestContext: requestContext(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp.Result, warningsMeta(resp.Warnings))
}

// ClassifyBatch classifies several events and returns results in input order
func (h *Handlers) ClassifyBatch(c *gin.Context) {
	var req entity.BatchClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, common.NewAppErrorWithDetails(common.ErrCodeInvalidFormat, "invalid request body", err.Error()))
		return
	}

	results, warnings, err := h.classify.ExecuteBatch(c.Request.Context(), req.Events, requestContext(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	meta := warningsMeta(warnings)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["count"] = len(results)
	respond(c, http.StatusOK, results, meta)
}

// RecentClassifications lists the latest results, newest first
func (h *Handlers) RecentClassifications(c *gin.Context) {
	limit := DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxRecentLimit {
			abortWithError(c, common.NewAppErrorWithDetails(common.ErrCodeOutOfRange, "invalid limit",
				"limit must be an integer between 1 and "+strconv.Itoa(MaxRecentLimit)))
			return
		}
		limit = n
	}

	results, err := h.classify.Recent(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, results, map[string]interface{}{"count": len(results)})
}

// ModelMetrics reports the model state
func (h *Handlers) ModelMetrics(c *gin.Context) {
	respond(c, http.StatusOK, h.models.Metrics(), nil)
}

// Retrain rebuilds the ensemble from the stored samples
func (h *Handlers) Retrain(c *gin.Context) {
	m, err := h.models.Retrain(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, m, nil)
}

// AddTrainingSample appends one labeled sample
func (h *Handlers) AddTrainingSample(c *gin.Context) {
	var sample entity.TrainingSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		abortWithError(c, common.NewAppErrorWithDetails(common.ErrCodeInvalidFormat, "invalid request body", err.Error()))
		return
	}

	resp, err := h.models.AddTrainingSample(c.Request.Context(), sample)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp, nil)
}

// ExportSnapshot writes the snapshot document. The body is the raw document
// so that it can be sent back unchanged to ImportSnapshot.
func (h *Handlers) ExportSnapshot(c *gin.Context) {
	data, err := h.codec.EncodeJSON(h.models.ExportSnapshot(c.Request.Context()))
	if err != nil {
		abortWithError(c, common.WrapError(err, common.ErrCodeInternal, "failed to encode model snapshot"))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ImportSnapshot replaces the model state with the posted document
func (h *Handlers) ImportSnapshot(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		abortWithError(c, common.NewAppErrorWithDetails(common.ErrCodeInvalidFormat, "failed to read request body", err.Error()))
		return
	}

	snap, err := h.codec.DecodeJSON(data)
	if err != nil {
		abortWithError(c, err)
		return
	}

	m, err := h.models.ImportSnapshot(c.Request.Context(), snap)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, m, nil)
}

// PersistSnapshot saves the current snapshot to the snapshot repository
func (h *Handlers) PersistSnapshot(c *gin.Context) {
	if err := h.models.PersistSnapshot(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, h.models.Metrics(), nil)
}

// RestoreSnapshot loads the saved snapshot back into the store
func (h *Handlers) RestoreSnapshot(c *gin.Context) {
	m, err := h.models.RestoreSnapshot(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, m, nil)
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthResponse("healthy", nil))
}

// Ready runs every readiness check and answers 503 if any fails
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", logging.String("check", name), logging.Error(err))
			results[name] = err.Error()
			status = "not_ready"
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h.healthResponse(status, results))
}

func (h *Handlers) healthResponse(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Service:     h.info.Name,
		Version:     h.info.Version,
		Environment: h.info.Environment,
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Checks:      checks,
	}
}

func respond(c *gin.Context, status int, data interface{}, meta map[string]interface{}) {
	c.JSON(status, types.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func warningsMeta(warnings []usecase.ProcessingWarning) map[string]interface{} {
	if len(warnings) == 0 {
		return nil
	}
	return map[string]interface{}{"warnings": warnings}
}

// abortWithError writes err as an APIError with the status its code maps to.
// Causes are only exposed for client errors.
func abortWithError(c *gin.Context, err error) {
	status := common.StatusCodeOf(err)

	apiErr := &types.APIError{
		Code:      string(common.ErrCodeInternal),
		Message:   "internal server error",
		Timestamp: time.Now().UTC(),
	}
	if appErr := common.GetAppError(err); appErr != nil {
		apiErr.Code = string(appErr.Code)
		apiErr.Message = appErr.Message
		apiErr.Details = appErr.Details
		if apiErr.Details == "" && appErr.Cause != nil && status < http.StatusInternalServerError {
			apiErr.Details = appErr.Cause.Error()
		}
	}
	if reqCtx := requestContext(c); reqCtx != nil {
		apiErr.RequestID = reqCtx.CorrelationID.String()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.APIResponse{Success: false, Error: apiErr})
}

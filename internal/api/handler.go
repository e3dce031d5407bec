// Package api exposes the pipeline over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/validation"
	"segment-research/internal/models"
	"segment-research/internal/pipeline"
)

// StageResponse mirrors the body returned by every stage endpoint.
type StageResponse struct {
	Result     string           `json:"result,omitempty"`
	Segments   []models.Segment `json:"segments,omitempty"`
	Title      string           `json:"title,omitempty"`
	Error      string           `json:"error,omitempty"`
	Code       string           `json:"code,omitempty"`
	Details    string           `json:"details,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Truncated  bool             `json:"truncated,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

type generateSegmentsRequest struct {
	Industry string `json:"industry"`
}

type enhanceSegmentsRequest struct {
	Industry string `json:"industry"`
	Segments string `json:"segments"`
}

type segmentInfoRequest struct {
	SegmentInfo json.RawMessage `json:"segmentInfo"`
}

// StageHandler serves the four single-shot stage endpoints. They keep no
// state between calls; the caller carries outputs from one stage to the next.
type StageHandler struct {
	runner    pipeline.StageRunner
	errors    *apperrors.ErrorHandler
	validator *validation.Validator
	logger    logger.Logger
}

func NewStageHandler(runner pipeline.StageRunner, log logger.Logger) *StageHandler {
	return &StageHandler{
		runner:    runner,
		errors:    apperrors.NewErrorHandler(log),
		validator: validation.Default(),
		logger:    log.With(map[string]interface{}{"component": "stage-handler"}),
	}
}

func (h *StageHandler) GenerateSegments(c *gin.Context) {
	var req generateSegmentsRequest
	if !h.bind(c, validation.SchemaGenerateSegments, &req) {
		return
	}
	h.run(c, pipeline.StageSegments, pipeline.StageInput{Industry: req.Industry})
}

func (h *StageHandler) EnhanceSegments(c *gin.Context) {
	var req enhanceSegmentsRequest
	if !h.bind(c, validation.SchemaEnhanceSegments, &req) {
		return
	}
	h.run(c, pipeline.StageEnhanced, pipeline.StageInput{Industry: req.Industry, Segments: req.Segments})
}

func (h *StageHandler) SalesNav(c *gin.Context) {
	var req struct {
		SegmentInfo string `json:"segmentInfo"`
	}
	if !h.bind(c, validation.SchemaSalesNav, &req) {
		return
	}
	h.run(c, pipeline.StageSalesNav, pipeline.StageInput{Enhanced: req.SegmentInfo})
}

func (h *StageHandler) DeepSegment(c *gin.Context) {
	var req segmentInfoRequest
	if !h.bind(c, validation.SchemaDeepSegment, &req) {
		return
	}
	info, err := pipeline.ResolveSegmentInfo(req.SegmentInfo)
	if err != nil {
		h.fail(c, apperrors.NewInvalidInputError("Invalid segment information", err))
		return
	}
	h.run(c, pipeline.StageDeepSegment, pipeline.StageInput{SegmentInfo: &info})
}

func (h *StageHandler) run(c *gin.Context, stage pipeline.Stage, in pipeline.StageInput) {
	result := h.runner.RunStage(c.Request.Context(), stage, in)
	status, body := stageResponse(result)
	c.JSON(status, body)
}

// bind validates the raw body against schema and decodes it into dst. On
// failure it writes a 400 and returns false.
func (h *StageHandler) bind(c *gin.Context, schema string, dst interface{}) bool {
	return bindJSON(c, h.validator, h.errors, schema, dst)
}

func (h *StageHandler) fail(c *gin.Context, err error) {
	status, body := h.errors.Handle(c.Request.Context(), c.FullPath(), err)
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, v *validation.Validator, eh *apperrors.ErrorHandler, schema string, dst interface{}) bool {
	raw, err := c.GetRawData()
	if err != nil {
		status, body := eh.Handle(c.Request.Context(), c.FullPath(), apperrors.NewInvalidInputError("unreadable request body", err))
		c.AbortWithStatusJSON(status, body)
		return false
	}

	res, err := v.ValidateBytes(schema, raw)
	if err != nil {
		status, body := eh.Handle(c.Request.Context(), c.FullPath(), apperrors.NewInternalError(err))
		c.AbortWithStatusJSON(status, body)
		return false
	}
	if !res.Valid {
		status, body := eh.Handle(c.Request.Context(), c.FullPath(), apperrors.NewInvalidInputError(res.Summary(), nil))
		c.AbortWithStatusJSON(status, body)
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		status, body := eh.Handle(c.Request.Context(), c.FullPath(), apperrors.NewInvalidInputError(err.Error(), err))
		c.AbortWithStatusJSON(status, body)
		return false
	}
	return true
}

// stageResponse maps a StageResult onto an HTTP status and body. A Sales
// Navigator response that could not be parsed is still a 200: the raw text
// is returned in result with error explaining the fallback.
func stageResponse(r pipeline.StageResult) (int, StageResponse) {
	body := StageResponse{
		Title:      r.Title,
		Warnings:   r.Warnings,
		Truncated:  r.Truncated,
		DurationMs: r.Duration.Milliseconds(),
	}
	if !r.Succeeded {
		body.Error = r.ErrorMessage
		body.Code = r.ErrorCode
		body.Details = r.ErrorDetails
		return apperrors.HTTPStatus(apperrors.ErrorCode(r.ErrorCode)), body
	}

	body.Result = r.Text
	if r.Stage == pipeline.StageSalesNav {
		if r.Structured != nil {
			body.Segments = r.Structured
		} else {
			body.Error = apperrors.NewParseFailureError(r.Text, nil).Message
			body.Code = string(apperrors.ErrCodeParseFailure)
		}
	}
	return http.StatusOK, body
}

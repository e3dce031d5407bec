package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "segment-research/internal/common/errors"
	"segment-research/internal/common/logger"
	"segment-research/internal/common/validation"
	"segment-research/internal/models"
	"segment-research/internal/pipeline"
	"segment-research/internal/session"
)

type SessionView struct {
	Session   models.Session `json:"session"`
	State     pipeline.State `json:"state"`
	Running   string         `json:"running,omitempty"`
	NextStage string         `json:"nextStage,omitempty"`
}

type AdvanceResponse struct {
	Stage   StageResponse `json:"stage"`
	Session SessionView   `json:"session"`
}

type advanceRequest struct {
	Stage        string          `json:"stage"`
	Industry     string          `json:"industry"`
	Segments     string          `json:"segments"`
	Enhanced     string          `json:"enhanced"`
	SegmentInfo  json.RawMessage `json:"segmentInfo"`
	SegmentIndex *int            `json:"segmentIndex"`
}

// SessionHandler drives a server-side pipeline per session.
type SessionHandler struct {
	registry  *session.Registry
	errors    *apperrors.ErrorHandler
	validator *validation.Validator
	logger    logger.Logger
}

func NewSessionHandler(registry *session.Registry, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		errors:    apperrors.NewErrorHandler(log),
		validator: validation.Default(),
		logger:    log.With(map[string]interface{}{"component": "session-handler"}),
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	s, err := h.registry.Create(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(s))
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

func (h *SessionHandler) Advance(c *gin.Context) {
	id := c.Param("id")
	var req advanceRequest
	if !bindJSON(c, h.validator, h.errors, validation.SchemaAdvance, &req) {
		return
	}

	s, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	stage := pipeline.Stage(req.Stage)
	in := pipeline.StageInput{
		Industry: req.Industry,
		Segments: req.Segments,
		Enhanced: req.Enhanced,
	}

	var selected *models.Segment
	if stage == pipeline.StageDeepSegment {
		selected, err = selectSegment(s.Orchestrator.Snapshot(), req)
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	result, err := h.registry.Advance(c.Request.Context(), id, stage, in, selected)
	if err != nil {
		h.fail(c, err)
		return
	}

	status, body := stageResponse(result)
	c.JSON(status, AdvanceResponse{Stage: body, Session: h.view(s)})
}

func (h *SessionHandler) Reset(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Reset(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) view(s *session.Session) SessionView {
	state := s.Orchestrator.Snapshot()
	v := SessionView{
		Session:   h.registry.Info(s),
		State:     state,
		NextStage: string(state.CurrentStage.Next()),
	}
	if running, ok := s.Orchestrator.Running(); ok {
		v.Running = string(running)
	}
	return v
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, body := h.errors.Handle(c.Request.Context(), c.FullPath(), err)
	c.AbortWithStatusJSON(status, body)
}

// selectSegment picks the deep segment subject either by index into the
// Sales Navigator output or by an explicit {name, content} object.
func selectSegment(state pipeline.State, req advanceRequest) (*models.Segment, error) {
	available := state.StageOutputs[pipeline.StageSalesNav].Structured

	if req.SegmentIndex != nil {
		idx := *req.SegmentIndex
		if idx < 0 || idx >= len(available) {
			return nil, apperrors.NewSegmentNotSelectedError(
				fmt.Sprintf("segmentIndex %d out of range (%d segments)", idx, len(available)), pipeline.ErrSegmentNotSelected)
		}
		seg := available[idx]
		return &seg, nil
	}

	if len(req.SegmentInfo) == 0 {
		return nil, nil
	}
	var seg models.Segment
	if err := json.Unmarshal(req.SegmentInfo, &seg); err != nil {
		return nil, apperrors.NewSegmentNotSelectedError("segmentInfo must be a {name, content} object", err)
	}
	return &seg, nil
}

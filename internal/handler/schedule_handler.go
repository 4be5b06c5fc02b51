package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/models"
	"github.com/jak0d/timetiba-sub002/internal/service"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/response"
)

// ScheduleHandler manages schedule and session endpoints.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// respondError surfaces blocking clashes as response metadata so callers get
// the full list, not just the conflict message.
func respondError(c *gin.Context, err error) {
	var clashErr *models.ClashError
	if errors.As(err, &clashErr) {
		response.ErrorWithMeta(c, err, map[string]interface{}{"clashes": clashErr.Clashes})
		return
	}
	response.Error(c, err)
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param status query string false "Filter by status"
// @Param academicPeriod query string false "Filter by academic period"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param sortBy query string false "Sort column"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	query.Status = strings.ToLower(query.Status)

	schedules, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, &pagination)
}

// Create godoc
// @Summary Create a draft schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Get godoc
// @Summary Get a schedule with its sessions
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// AddSession godoc
// @Summary Add a session to a schedule
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.SessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /schedules/{id}/sessions [post]
func (h *ScheduleHandler) AddSession(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.AddSession(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, session)
}

// UpdateSession godoc
// @Summary Update a scheduled session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Param payload body dto.SessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions/{sessionId} [put]
func (h *ScheduleHandler) UpdateSession(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.UpdateSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"), req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// RemoveSession godoc
// @Summary Remove a session from a schedule
// @Tags Sessions
// @Produce json
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /schedules/{id}/sessions/{sessionId} [delete]
func (h *ScheduleHandler) RemoveSession(c *gin.Context) {
	if err := h.service.RemoveSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish a schedule
// @Description Runs the full clash detection pass and publishes only when no
// @Description blocking clashes remain. The publisher is taken from the bearer
// @Description token; anonymous deployments may pass it in the body instead.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.PublishRequest false "Publisher fallback"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/publish [post]
func (h *ScheduleHandler) Publish(c *gin.Context) {
	publishedBy := actorID(c)
	if publishedBy == "" {
		var req dto.PublishRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			publishedBy = req.PublishedBy
		}
	}
	schedule, err := h.service.Publish(c.Request.Context(), c.Param("id"), publishedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Archive godoc
// @Summary Archive a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/archive [post]
func (h *ScheduleHandler) Archive(c *gin.Context) {
	schedule, err := h.service.Archive(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// MarkUnderReview godoc
// @Summary Move a draft schedule into review
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/review [post]
func (h *ScheduleHandler) MarkUnderReview(c *gin.Context) {
	schedule, err := h.service.MarkUnderReview(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// ReopenDraft godoc
// @Summary Send a schedule under review back to draft
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/reopen [post]
func (h *ScheduleHandler) ReopenDraft(c *gin.Context) {
	schedule, err := h.service.ReopenDraft(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Validate godoc
// @Summary Run full clash detection for a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/clashes [get]
func (h *ScheduleHandler) Validate(c *gin.Context) {
	report, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// AuditTrail godoc
// @Summary List audit entries for a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/audit [get]
func (h *ScheduleHandler) AuditTrail(c *gin.Context) {
	entries, err := h.service.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/response"
)

// ImportJobService defines the subset of the import service used by the handler.
type ImportJobService interface {
	Enqueue(ctx context.Context, req dto.ImportRequest, actor string) (*models.ImportJob, error)
	Job(ctx context.Context, jobID string) (*models.ImportJob, error)
}

// ImportHandler exposes the bulk import pipeline.
type ImportHandler struct {
	service ImportJobService
}

// NewImportHandler constructs handler.
func NewImportHandler(svc ImportJobService) *ImportHandler {
	return &ImportHandler{service: svc}
}

// Enqueue godoc
// @Summary Queue a bulk session import for a schedule
// @Description Accepts candidate rows plus reconciliation options and queues
// @Description the run. Poll the returned job id for progress and the result.
// @Tags Imports
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.ImportRequest true "Import payload"
// @Success 202 {object} response.Envelope
// @Router /schedules/{id}/import [post]
func (h *ImportHandler) Enqueue(c *gin.Context) {
	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ScheduleID = c.Param("id")

	job, err := h.service.Enqueue(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.ImportJobResponse{
		ID:         job.ID,
		ScheduleID: job.ScheduleID,
		Status:     job.Status,
		TotalRows:  job.TotalRows,
	}, nil)
}

// Job godoc
// @Summary Poll an import job
// @Tags Imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) Job(c *gin.Context) {
	job, err := h.service.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

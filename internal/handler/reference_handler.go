package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jak0d/timetiba-sub002/internal/service"
	"github.com/jak0d/timetiba-sub002/pkg/response"
)

// ReferenceRefresher defines the subset of the reference service used by the handler.
type ReferenceRefresher interface {
	Refresh(ctx context.Context) (service.DetectionContext, error)
}

// ReferenceHandler manages the cached reference-data snapshot.
type ReferenceHandler struct {
	service ReferenceRefresher
}

// NewReferenceHandler constructs handler.
func NewReferenceHandler(svc ReferenceRefresher) *ReferenceHandler {
	return &ReferenceHandler{service: svc}
}

// Refresh godoc
// @Summary Rebuild the reference-data snapshot
// @Description Drops the cached snapshot and reloads venues, lecturers,
// @Description courses and student groups from the database. Call after
// @Description reference data changes out of band.
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reference/refresh [post]
func (h *ReferenceHandler) Refresh(c *gin.Context) {
	refs, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, map[string]int{
		"venues":        len(refs.Venues),
		"lecturers":     len(refs.Lecturers),
		"courses":       len(refs.Courses),
		"studentGroups": len(refs.StudentGroups),
	}, nil)
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/service"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/response"
)

// TimetableExporter defines the subset of the export service used by the handler.
type TimetableExporter interface {
	Generate(ctx context.Context, scheduleID string, format service.ExportFormat) (*service.ExportResult, error)
	ResolveDownload(token string) (*service.ExportDownload, error)
}

// ExportHandler serves timetable export links and downloads.
type ExportHandler struct {
	service TimetableExporter
}

// NewExportHandler constructs handler.
func NewExportHandler(svc TimetableExporter) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Export a schedule timetable
// @Description Renders the timetable and returns a signed download link.
// @Tags Exports
// @Produce json
// @Param id path string true "Schedule ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/export [get]
func (h *ExportHandler) Generate(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportLinkResponse{
		URL:       result.URL,
		Format:    string(result.Format),
		ExpiresAt: result.ExpiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a rendered export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.ContentType, result.File, nil)
}

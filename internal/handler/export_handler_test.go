package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/service"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
)

type exporterMock struct {
	generateFormat service.ExportFormat
	generateResp   *service.ExportResult
	generateErr    error
	download       *service.ExportDownload
	downloadErr    error
}

func (m *exporterMock) Generate(ctx context.Context, scheduleID string, format service.ExportFormat) (*service.ExportResult, error) {
	m.generateFormat = format
	return m.generateResp, m.generateErr
}

func (m *exporterMock) ResolveDownload(token string) (*service.ExportDownload, error) {
	return m.download, m.downloadErr
}

func TestExportHandlerGenerateReturnsLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exporterMock{
		generateResp: &service.ExportResult{
			URL:       "/api/v1/export/tok123",
			Format:    service.ExportPDF,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/schedules/sched-1/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "sched-1"}}

	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportPDF, mockSvc.generateFormat)

	var envelope struct {
		Data dto.ExportLinkResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "/api/v1/export/tok123", envelope.Data.URL)
	assert.Equal(t, "pdf", envelope.Data.Format)
}

func TestExportHandlerGenerateDefaultsToCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exporterMock{
		generateResp: &service.ExportResult{URL: "/api/v1/export/tok", Format: service.ExportCSV},
	}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/schedules/sched-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "sched-1"}}

	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportCSV, mockSvc.generateFormat)
}

func TestExportHandlerGenerateRejectsUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exporterMock{})

	c, w := newGinContext(http.MethodGet, "/schedules/sched-1/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: "sched-1"}}

	handler.Generate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported export format")
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "timetable*.csv")
	require.NoError(t, err)
	_, err = file.WriteString("Day,Time\nMONDAY,09:00 - 11:00\n")
	require.NoError(t, err)
	_, err = file.Seek(0, 0)
	require.NoError(t, err)

	info, err := file.Stat()
	require.NoError(t, err)

	mockSvc := &exporterMock{
		download: &service.ExportDownload{
			File:        file,
			Filename:    "timetable.csv",
			ContentType: "text/csv",
			SizeBytes:   info.Size(),
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/export/tok123", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok123"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable.csv")
	assert.Contains(t, w.Body.String(), "MONDAY")
}

func TestExportHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exporterMock{})

	c, w := newGinContext(http.MethodGet, "/export/", nil)
	c.Params = gin.Params{{Key: "token", Value: "  "}}

	handler.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exporterMock{
		downloadErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"),
	}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}

	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

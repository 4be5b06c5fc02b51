package dto

import (
	"github.com/jak0d/timetiba-sub002/internal/models"
)

// ImportRequest captures one import run: the candidate rows plus the options
// forwarded unmodified to the pipeline.
type ImportRequest struct {
	ScheduleID         string                    `json:"scheduleId" validate:"required"`
	Strategy           models.ConflictStrategy   `json:"strategy" validate:"required"`
	AllowPartialImport bool                      `json:"allowPartialImport"`
	ValidateOnly       bool                      `json:"validateOnly"`
	BatchSize          int                       `json:"batchSize" validate:"omitempty,min=1,max=500"`
	Candidates         []models.SessionCandidate `json:"candidates" validate:"required,min=1"`
}

// Options converts the request into the pipeline option set.
func (r ImportRequest) Options() models.ImportOptions {
	return models.ImportOptions{
		ScheduleID:         r.ScheduleID,
		Strategy:           r.Strategy,
		AllowPartialImport: r.AllowPartialImport,
		ValidateOnly:       r.ValidateOnly,
		BatchSize:          r.BatchSize,
	}
}

// ImportJobResponse is returned after enqueueing an import.
type ImportJobResponse struct {
	ID         string                 `json:"id"`
	ScheduleID string                 `json:"scheduleId"`
	Status     models.ImportJobStatus `json:"status"`
	TotalRows  int                    `json:"totalRows"`
}

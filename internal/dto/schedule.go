package dto

import (
	"time"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// CreateScheduleRequest captures POST /schedules payload.
type CreateScheduleRequest struct {
	Name           string    `json:"name" validate:"required,min=3,max=200"`
	AcademicPeriod string    `json:"academicPeriod" validate:"required,max=64"`
	StartDate      time.Time `json:"startDate" validate:"required"`
	EndDate        time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
}

// SessionRequest is the payload for adding or updating one session.
type SessionRequest struct {
	CourseID        string    `json:"courseId" validate:"required"`
	LecturerID      string    `json:"lecturerId" validate:"required"`
	VenueID         string    `json:"venueId" validate:"required"`
	StudentGroupIDs []string  `json:"studentGroupIds" validate:"required,min=1,dive,required"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	EndTime         time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	DayOfWeek       string    `json:"dayOfWeek" validate:"required"`
	WeekNumber      *int      `json:"weekNumber,omitempty" validate:"omitempty,min=1,max=53"`
	Notes           *string   `json:"notes,omitempty"`
}

// ScheduleQuery mirrors supported listing filters.
type ScheduleQuery struct {
	Status         string `form:"status" json:"status"`
	AcademicPeriod string `form:"academicPeriod" json:"academicPeriod"`
	Page           int    `form:"page" json:"page"`
	PageSize       int    `form:"pageSize" json:"pageSize"`
	SortBy         string `form:"sortBy" json:"sortBy"`
	SortOrder      string `form:"sortOrder" json:"sortOrder"`
}

// PublishRequest carries the actor stamped on a published schedule.
type PublishRequest struct {
	PublishedBy string `json:"publishedBy" validate:"required"`
}

// ValidationResponse wraps a detection report for one schedule.
type ValidationResponse struct {
	ScheduleID string                  `json:"scheduleId"`
	Report     *models.DetectionReport `json:"report"`
}

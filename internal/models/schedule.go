package models

import "time"

// ScheduleStatus represents lifecycle phases of a timetable.
type ScheduleStatus string

const (
	ScheduleStatusDraft       ScheduleStatus = "DRAFT"
	ScheduleStatusUnderReview ScheduleStatus = "UNDER_REVIEW"
	ScheduleStatusPublished   ScheduleStatus = "PUBLISHED"
	ScheduleStatusArchived    ScheduleStatus = "ARCHIVED"
)

// scheduleTransitions lists the allowed edges of the schedule lifecycle.
// Archived is terminal.
var scheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleStatusDraft:       {ScheduleStatusUnderReview, ScheduleStatusPublished, ScheduleStatusArchived},
	ScheduleStatusUnderReview: {ScheduleStatusDraft, ScheduleStatusPublished, ScheduleStatusArchived},
	ScheduleStatusPublished:   {ScheduleStatusArchived},
	ScheduleStatusArchived:    {},
}

// Valid reports whether s is a known lifecycle status.
func (s ScheduleStatus) Valid() bool {
	_, ok := scheduleTransitions[s]
	return ok
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s ScheduleStatus) CanTransition(next ScheduleStatus) bool {
	for _, allowed := range scheduleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Schedule is a versioned timetable for an academic period.
type Schedule struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	AcademicPeriod string         `db:"academic_period" json:"academic_period"`
	Status         ScheduleStatus `db:"status" json:"status"`
	Version        int            `db:"version" json:"version"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	EndDate        time.Time      `db:"end_date" json:"end_date"`
	PublishedAt    *time.Time     `db:"published_at" json:"published_at,omitempty"`
	PublishedBy    *string        `db:"published_by" json:"published_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`

	Sessions []ScheduledSession `db:"-" json:"sessions,omitempty"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	Status         ScheduleStatus
	AcademicPeriod string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

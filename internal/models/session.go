package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DayOfWeek enumerates teaching days.
type DayOfWeek string

const (
	DayMonday    DayOfWeek = "MONDAY"
	DayTuesday   DayOfWeek = "TUESDAY"
	DayWednesday DayOfWeek = "WEDNESDAY"
	DayThursday  DayOfWeek = "THURSDAY"
	DayFriday    DayOfWeek = "FRIDAY"
	DaySaturday  DayOfWeek = "SATURDAY"
	DaySunday    DayOfWeek = "SUNDAY"
)

var dayOrder = map[DayOfWeek]int{
	DayMonday:    0,
	DayTuesday:   1,
	DayWednesday: 2,
	DayThursday:  3,
	DayFriday:    4,
	DaySaturday:  5,
	DaySunday:    6,
}

// Index returns the position of the day within the week, Monday first.
// Unknown values sort after Sunday.
func (d DayOfWeek) Index() int {
	if idx, ok := dayOrder[d]; ok {
		return idx
	}
	return len(dayOrder)
}

// Valid reports whether d is one of the seven known days.
func (d DayOfWeek) Valid() bool {
	_, ok := dayOrder[d]
	return ok
}

// ParseDayOfWeek normalizes a raw day token into a DayOfWeek.
func ParseDayOfWeek(raw string) (DayOfWeek, error) {
	day := DayOfWeek(strings.ToUpper(strings.TrimSpace(raw)))
	if !day.Valid() {
		return "", fmt.Errorf("unknown day of week %q", raw)
	}
	return day, nil
}

// ScheduledSession is the atomic unit of scheduling: one occurrence of a
// course at a venue and time, possibly spanning several student groups.
type ScheduledSession struct {
	ID              string         `db:"id" json:"id"`
	ScheduleID      string         `db:"schedule_id" json:"schedule_id"`
	CourseID        string         `db:"course_id" json:"course_id"`
	LecturerID      string         `db:"lecturer_id" json:"lecturer_id"`
	VenueID         string         `db:"venue_id" json:"venue_id"`
	StudentGroupIDs pq.StringArray `db:"student_group_ids" json:"student_group_ids"`
	StartTime       time.Time      `db:"start_time" json:"start_time"`
	EndTime         time.Time      `db:"end_time" json:"end_time"`
	DayOfWeek       DayOfWeek      `db:"day_of_week" json:"day_of_week"`
	WeekNumber      *int           `db:"week_number" json:"week_number,omitempty"`
	Notes           *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// StartMinutes returns the start instant's time of day in minutes since midnight.
func (s ScheduledSession) StartMinutes() int {
	return s.StartTime.Hour()*60 + s.StartTime.Minute()
}

// EndMinutes returns the end instant's time of day in minutes since midnight.
func (s ScheduledSession) EndMinutes() int {
	return s.EndTime.Hour()*60 + s.EndTime.Minute()
}

// DurationMinutes returns the session length in minutes of day time.
func (s ScheduledSession) DurationMinutes() int {
	return s.EndMinutes() - s.StartMinutes()
}

// Overlaps reports whether two sessions collide: same day of week, same
// week when both are week-bound, and strictly intersecting time-of-day
// intervals. Touching endpoints do not collide.
func (s ScheduledSession) Overlaps(other ScheduledSession) bool {
	if s.DayOfWeek != other.DayOfWeek {
		return false
	}
	if s.WeekNumber != nil && other.WeekNumber != nil && *s.WeekNumber != *other.WeekNumber {
		return false
	}
	return s.StartMinutes() < other.EndMinutes() && other.StartMinutes() < s.EndMinutes()
}

// HasStudentGroup reports whether the session includes the given group.
func (s ScheduledSession) HasStudentGroup(groupID string) bool {
	for _, id := range s.StudentGroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// StudentGroup represents a cohort of students enrolled together.
type StudentGroup struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	Size       int            `db:"size" json:"size"`
	CourseIDs  pq.StringArray `db:"course_ids" json:"course_ids"`
	YearLevel  int            `db:"year_level" json:"year_level"`
	Department string         `db:"department" json:"department"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

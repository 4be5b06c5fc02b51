package models

import (
	"time"

	"github.com/lib/pq"
)

// Course represents a teachable unit of study.
type Course struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Code              string         `db:"code" json:"code"`
	Duration          int            `db:"duration" json:"duration"`
	Frequency         int            `db:"frequency" json:"frequency"`
	RequiredEquipment pq.StringArray `db:"required_equipment" json:"required_equipment"`
	StudentGroupIDs   pq.StringArray `db:"student_group_ids" json:"student_group_ids"`
	LecturerIDs       pq.StringArray `db:"lecturer_ids" json:"lecturer_ids"`
	Department        string         `db:"department" json:"department"`
	Credits           int            `db:"credits" json:"credits"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

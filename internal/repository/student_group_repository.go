package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// StudentGroupRepository reads student group reference data.
type StudentGroupRepository struct {
	db *sqlx.DB
}

// NewStudentGroupRepository creates a new student group repository.
func NewStudentGroupRepository(db *sqlx.DB) *StudentGroupRepository {
	return &StudentGroupRepository{db: db}
}

// List returns all student groups ordered by name.
func (r *StudentGroupRepository) List(ctx context.Context) ([]models.StudentGroup, error) {
	const query = `SELECT id, name, size, course_ids, year_level, department, created_at, updated_at FROM student_groups ORDER BY name ASC, id ASC`
	var groups []models.StudentGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list student groups: %w", err)
	}
	return groups, nil
}

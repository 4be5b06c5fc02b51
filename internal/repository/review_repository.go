package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// ReviewRepository persists flagged import rows awaiting a manual decision.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new review repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create stores the flagged entries of one import run.
func (r *ReviewRepository) Create(ctx context.Context, exec sqlx.ExtContext, review *models.ImportReview) error {
	if review == nil {
		return fmt.Errorf("review payload is nil")
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.State == nil {
		review.State = models.ReviewState{}
	}
	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now

	const query = `INSERT INTO import_reviews (id, schedule_id, job_id, state, created_by, created_at, updated_at)
VALUES (:id, :schedule_id, :job_id, :state, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, review); err != nil {
		return fmt.Errorf("create import review: %w", err)
	}
	return nil
}

// GetByID loads a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*models.ImportReview, error) {
	const query = `SELECT id, schedule_id, job_id, state, created_by, created_at, updated_at FROM import_reviews WHERE id = $1`
	var review models.ImportReview
	if err := r.db.GetContext(ctx, &review, query, id); err != nil {
		return nil, err
	}
	return &review, nil
}

// ListBySchedule returns reviews for a schedule, newest first.
func (r *ReviewRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ImportReview, error) {
	const query = `SELECT id, schedule_id, job_id, state, created_by, created_at, updated_at FROM import_reviews WHERE schedule_id = $1 ORDER BY created_at DESC, id ASC`
	var reviews []models.ImportReview
	if err := r.db.SelectContext(ctx, &reviews, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list import reviews: %w", err)
	}
	return reviews, nil
}

// UpdateState replaces the decision state of a review.
func (r *ReviewRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, state models.ReviewState) error {
	if state == nil {
		state = models.ReviewState{}
	}
	const query = `UPDATE import_reviews SET state = $1, updated_at = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, state, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update import review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("import review rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

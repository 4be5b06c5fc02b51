package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// SessionRepository persists scheduled sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const sessionColumns = "id, schedule_id, course_id, lecturer_id, venue_id, student_group_ids, start_time, end_time, day_of_week, week_number, notes, created_at, updated_at"

// Create inserts a session row with generated defaults.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error {
	if session == nil {
		return fmt.Errorf("session payload is nil")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StudentGroupIDs == nil {
		session.StudentGroupIDs = pq.StringArray{}
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO scheduled_sessions (id, schedule_id, course_id, lecturer_id, venue_id, student_group_ids, start_time, end_time, day_of_week, week_number, notes, created_at, updated_at)
VALUES (:id, :schedule_id, :course_id, :lecturer_id, :venue_id, :student_group_ids, :start_time, :end_time, :day_of_week, :week_number, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a session row.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error {
	if session == nil {
		return fmt.Errorf("session payload is nil")
	}
	if session.StudentGroupIDs == nil {
		session.StudentGroupIDs = pq.StringArray{}
	}
	session.UpdatedAt = time.Now().UTC()

	const query = `UPDATE scheduled_sessions SET course_id = :course_id, lecturer_id = :lecturer_id, venue_id = :venue_id, student_group_ids = :student_group_ids, start_time = :start_time, end_time = :end_time, day_of_week = :day_of_week, week_number = :week_number, notes = :notes, updated_at = :updated_at WHERE id = :id AND schedule_id = :schedule_id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session row.
func (r *SessionRepository) Delete(ctx context.Context, exec sqlx.ExtContext, scheduleID, sessionID string) error {
	const query = `DELETE FROM scheduled_sessions WHERE id = $1 AND schedule_id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, sessionID, scheduleID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID loads a session by id.
func (r *SessionRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduledSession, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_sessions WHERE id = $1", sessionColumns)
	var session models.ScheduledSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListBySchedule returns all sessions of a schedule in stable order.
func (r *SessionRepository) ListBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) ([]models.ScheduledSession, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_sessions WHERE schedule_id = $1 ORDER BY day_of_week ASC, start_time ASC, id ASC", sessionColumns)
	var sessions []models.ScheduledSession
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListByIDs returns the session rows matching the given ids.
func (r *SessionRepository) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.ScheduledSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM scheduled_sessions WHERE id = ANY($1) ORDER BY id ASC", sessionColumns)
	var sessions []models.ScheduledSession
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list sessions by ids: %w", err)
	}
	return sessions, nil
}

// CountBySchedule returns the number of sessions attached to a schedule.
func (r *SessionRepository) CountBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) (int, error) {
	const query = `SELECT COUNT(*) FROM scheduled_sessions WHERE schedule_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, scheduleID); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

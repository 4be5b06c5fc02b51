package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

func newReviewRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReviewRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_reviews")).
		WithArgs(sqlmock.AnyArg(), "sched-1", nil, sqlmock.AnyArg(), "importer", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.ImportReview{
		ScheduleID: "sched-1",
		CreatedBy:  "importer",
	}
	err := repo.Create(context.Background(), nil, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ID)
	assert.NotNil(t, payload.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	state := `[{"row":4,"clash_type":"venue_double_booking","candidate":{"course_id":"course-1","lecturer_id":"lect-1","venue_id":"venue-1","student_group_ids":["group-1"],"start_time":"2026-01-05T09:00:00Z","end_time":"2026-01-05T10:00:00Z","day_of_week":"MONDAY"},"clash":{"id":"clash-1","type":"venue_double_booking","severity":"error","schedule_id":"sched-1","session_ids":["cand-4","sess-1"],"entity_ids":["venue-1"],"description":"","resolutions":null,"resolved":false},"decision":"pending"}]`
	rows := sqlmock.NewRows([]string{"id", "schedule_id", "job_id", "state", "created_by", "created_at", "updated_at"}).
		AddRow("rev-1", "sched-1", "job-1", state, "importer", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM import_reviews WHERE id = $1")).
		WithArgs("rev-1").
		WillReturnRows(rows)

	review, err := repo.GetByID(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Len(t, review.State, 1)
	assert.Equal(t, 4, review.State[0].Row)
	assert.Equal(t, models.ClashVenueDoubleBooking, review.State[0].ClashType)
	assert.Equal(t, models.ReviewPending, review.State[0].Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryUpdateStateNotFound(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()
	repo := NewReviewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_reviews SET state = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "rev-ghost").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err := repo.UpdateState(context.Background(), nil, "rev-ghost", models.ReviewState{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

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

func newScheduleRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestScheduleRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), "Fall Timetable", "2026-S1", string(models.ScheduleStatusDraft), 1, sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.Schedule{
		Name:           "Fall Timetable",
		AcademicPeriod: "2026-S1",
		StartDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
	}
	err := repo.Create(context.Background(), nil, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, models.ScheduleStatusDraft, payload.Status)
	assert.Equal(t, 1, payload.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryGetForUpdate(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "academic_period", "status", "version", "start_date", "end_date", "published_at", "published_by", "created_at", "updated_at"}).
		AddRow("sched-1", "Fall Timetable", "2026-S1", string(models.ScheduleStatusDraft), 1, time.Now(), time.Now(), nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, academic_period, status, version, start_date, end_date, published_at, published_by, created_at, updated_at FROM schedules WHERE id = $1 FOR UPDATE")).
		WithArgs("sched-1").
		WillReturnRows(rows)

	schedule, err := repo.GetForUpdate(context.Background(), nil, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "sched-1", schedule.ID)
	assert.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	assert.Nil(t, schedule.PublishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedules WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "academic_period", "status", "version", "start_date", "end_date", "published_at", "published_by", "created_at", "updated_at"}).
		AddRow("sched-1", "Fall Timetable", "2026-S1", string(models.ScheduleStatusPublished), 2, time.Now(), time.Now(), time.Now(), "registrar", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedules WHERE 1=1 AND status = $1 ORDER BY created_at ASC LIMIT 20 OFFSET 0")).
		WithArgs(string(models.ScheduleStatusPublished)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedules WHERE 1=1 AND status = $1")).
		WithArgs(string(models.ScheduleStatusPublished)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ScheduleFilter{Status: models.ScheduleStatusPublished})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, list[0].PublishedBy)
	assert.Equal(t, "registrar", *list[0].PublishedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET status = $1, version = $2, published_at = $3, published_by = $4, updated_at = $5 WHERE id = $6")).
		WithArgs(string(models.ScheduleStatusPublished), 2, sqlmock.AnyArg(), "registrar", sqlmock.AnyArg(), "sched-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	publishedAt := time.Now().UTC()
	publishedBy := "registrar"
	payload := &models.Schedule{
		ID:          "sched-1",
		Status:      models.ScheduleStatusPublished,
		Version:     2,
		PublishedAt: &publishedAt,
		PublishedBy: &publishedBy,
	}
	require.NoError(t, repo.UpdateStatus(context.Background(), nil, payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET status = $1, version = $2, published_at = $3, published_by = $4, updated_at = $5 WHERE id = $6")).
		WithArgs(string(models.ScheduleStatusArchived), 1, nil, nil, sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(1, 0))

	payload := &models.Schedule{ID: "ghost", Status: models.ScheduleStatusArchived, Version: 1}
	err := repo.UpdateStatus(context.Background(), nil, payload)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/jobs"
)

func TestImportServiceRunCreatesCleanRows(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "MONDAY", 11, 13),
	)
	req.BatchSize = 1

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Failed)
	require.Len(t, result.CreatedSessionIDs, 2)

	stored, storeErr := fx.sessions.ListBySchedule(context.Background(), nil, "sched-1")
	require.NoError(t, storeErr)
	assert.Len(t, stored, 2)

	require.Len(t, fx.audits.entries, 1)
	entry := fx.audits.entries[0]
	assert.Equal(t, models.AuditActionImportRun, entry.Action)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "importer", *entry.ActorID)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunValidateOnlyPersistsNothing(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)
	req.ValidateOnly = true

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.True(t, result.ValidateOnly)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.CreatedSessionIDs)

	stored, storeErr := fx.sessions.ListBySchedule(context.Background(), nil, "sched-1")
	require.NoError(t, storeErr)
	assert.Empty(t, stored, "dry runs must not persist sessions")
	assert.Empty(t, fx.audits.entries, "dry runs must not write audit entries")
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunStrictRejectsClashingRow(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "TUESDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "MONDAY", 9, 11),
	)
	req.AllowPartialImport = true

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed)

	require.NotEmpty(t, result.Conflicts)
	assert.Equal(t, models.ClashVenueDoubleBooking, result.Conflicts[0].Type)
	assert.Contains(t, result.Conflicts[0].SessionIDs, "sess-1")

	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 2, result.RowErrors[0].Row)

	require.NotEmpty(t, result.ResolutionAttempts)
	attempt := result.ResolutionAttempts[0]
	assert.Equal(t, 2, attempt.Row)
	assert.Equal(t, "skipped", attempt.Action)
	assert.False(t, attempt.Success)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunAbortsWithoutPartialImport(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "TUESDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectRollback()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NotNil(t, result, "aborted runs still report row outcomes")
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Created, "rollback zeroes the created count")
	assert.Empty(t, result.CreatedSessionIDs)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunSkipStrategyKeepsGoing(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
	})
	req := importRequest("sched-1", models.StrategySkip,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "TUESDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err, "skipped rows are deliberate outcomes, not failures")
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)

	require.NotEmpty(t, result.ResolutionAttempts)
	attempt := result.ResolutionAttempts[0]
	assert.Equal(t, 1, attempt.Row)
	assert.Equal(t, "skipped", attempt.Action)
	assert.True(t, attempt.Success)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunManualReviewFlagsAndPersistsQueue(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
	})
	req := importRequest("sched-1", models.StrategyManualReview,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err, "flagged rows do not abort the run")
	assert.Equal(t, 1, result.Flagged)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Failed)

	reviews, listErr := fx.reviews.ListBySchedule(context.Background(), "sched-1")
	require.NoError(t, listErr)
	require.Len(t, reviews, 1)
	review := reviews[0]
	assert.Equal(t, "importer", review.CreatedBy)
	assert.Nil(t, review.JobID)
	require.Len(t, review.State, 1)
	entry := review.State[0]
	assert.Equal(t, 1, entry.Row)
	assert.Equal(t, models.ClashVenueDoubleBooking, entry.ClashType)
	assert.Equal(t, models.ReviewPending, entry.Decision)
	assert.Equal(t, "venue-1", entry.Candidate.VenueID)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunAutomaticRepairsVenueClash(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
		refs: NewDetectionContext(
			[]models.Venue{
				{ID: "venue-1", Name: "Main Hall", Capacity: 200},
				{ID: "venue-2", Name: "Annex", Capacity: 100},
			},
			[]models.Lecturer{{ID: "lect-a", Name: "Dr Chen"}},
			[]models.Course{{ID: "course-1", Code: "CS101", Name: "Algorithms"}},
			[]models.StudentGroup{{ID: "group-a", Name: "CS Year 1", Size: 40}},
		),
	})
	req := importRequest("sched-1", models.StrategyAutomatic,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Failed)

	require.Len(t, result.CreatedSessionIDs, 1)
	created, getErr := fx.sessions.GetByID(context.Background(), nil, result.CreatedSessionIDs[0])
	require.NoError(t, getErr)
	assert.Equal(t, "venue-2", created.VenueID, "repair moves the session to the free venue")

	require.NotEmpty(t, result.ResolutionAttempts)
	attempt := result.ResolutionAttempts[0]
	assert.Equal(t, 1, attempt.Row)
	assert.Equal(t, "reassign_venue", attempt.Action)
	assert.True(t, attempt.Success)
	assert.NotEmpty(t, attempt.Detail)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunAutomaticFailsWithoutAlternative(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
		refs: NewDetectionContext(
			[]models.Venue{{ID: "venue-1", Name: "Main Hall", Capacity: 200}},
			[]models.Lecturer{{ID: "lect-a", Name: "Dr Chen"}},
			[]models.Course{{ID: "course-1", Code: "CS101", Name: "Algorithms"}},
			[]models.StudentGroup{{ID: "group-a", Name: "CS Year 1", Size: 40}},
		),
	})
	req := importRequest("sched-1", models.StrategyAutomatic,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)
	req.AllowPartialImport = true

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Conflicts)

	require.NotEmpty(t, result.ResolutionAttempts)
	attempt := result.ResolutionAttempts[0]
	assert.Equal(t, "reassign_venue", attempt.Action)
	assert.False(t, attempt.Success)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunReportsRowValidationErrors(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	invalid := importCandidate("course-1", "", "venue-1", "group-a", "FUNDAY", 9, 11)
	req := importRequest("sched-1", models.StrategyStrict,
		invalid,
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "TUESDAY", 9, 11),
	)
	req.AllowPartialImport = true

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed)

	fields := make(map[string]bool)
	for _, rowErr := range result.RowErrors {
		assert.Equal(t, 1, rowErr.Row)
		fields[rowErr.Field] = true
	}
	assert.True(t, fields["lecturer_id"])
	assert.True(t, fields["day_of_week"])
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunPersistFailureContinues(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	fx.sessions.failCreateCourse = "course-bad"
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-bad", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "TUESDAY", 9, 11),
	)
	req.AllowPartialImport = true

	fx.mock.ExpectBegin()
	expectSavepointRollback(fx.mock)
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 1, result.RowErrors[0].Row)
	assert.Contains(t, result.RowErrors[0].Message, "persist")
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunIntegrityFailureRollsBack(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	fx.sessions.verifyDrop = 1
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectRollback()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErrors.FromError(err).Code)
	require.NotNil(t, result)
	assert.Zero(t, result.Created)
	assert.Empty(t, result.CreatedSessionIDs)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunSeesEarlierAcceptedRows(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-9", "group-a", "MONDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-9", "group-b", "MONDAY", 10, 12),
	)
	req.AllowPartialImport = true

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	result, err := fx.service.Run(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed, "second row must clash with the row accepted before it")

	require.NotEmpty(t, result.Conflicts)
	require.Len(t, result.CreatedSessionIDs, 1)
	assert.Contains(t, result.Conflicts[0].SessionIDs, result.CreatedSessionIDs[0])
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunArchivedScheduleRejected(t *testing.T) {
	archived := draftSchedule("sched-1")
	archived.Status = models.ScheduleStatusArchived
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{archived},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.service.Run(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrArchived.Code, appErrors.FromError(err).Code)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunScheduleNotFound(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{})
	req := importRequest("missing", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.service.Run(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceRunRejectsUnknownStrategy(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{})
	req := importRequest("sched-1", models.ConflictStrategy("merge_magic"),
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	_, err := fx.service.Run(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportServiceEnqueueStoresJobAndDispatches(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	req := importRequest("sched-1", models.StrategySkip,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
		importCandidate("course-1", "lect-b", "venue-1", "group-b", "TUESDAY", 9, 11),
	)

	job, err := fx.service.Enqueue(context.Background(), req, "importer")
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusQueued, job.Status)
	assert.Equal(t, 2, job.TotalRows)
	assert.Equal(t, models.StrategySkip, job.Options.Strategy)

	stored, getErr := fx.jobsRepo.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ImportStatusQueued, stored.Status)

	require.Len(t, fx.queue.enqueued, 1)
	assert.Equal(t, job.ID, fx.queue.enqueued[0].ID)
	assert.Equal(t, importJobType, fx.queue.enqueued[0].Type)
}

func TestImportServiceEnqueueDispatchFailureMarksJob(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	fx.queue.fail = true
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)

	job, err := fx.service.Enqueue(context.Background(), req, "importer")
	require.Error(t, err)
	assert.Nil(t, job)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	require.Len(t, fx.jobsRepo.items, 1)
	for _, stored := range fx.jobsRepo.items {
		assert.Equal(t, models.ImportStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
	}
}

func TestImportServiceJobNotFound(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{})

	_, err := fx.service.Job(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestImportWorkerMarksJobFinished(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)
	job, err := fx.service.Enqueue(context.Background(), req, "importer")
	require.NoError(t, err)
	require.Len(t, fx.queue.enqueued, 1)

	fx.mock.ExpectBegin()
	expectSavepoint(fx.mock)
	fx.mock.ExpectCommit()

	worker := NewImportWorker(fx.service, fx.jobsRepo, nil, nil)
	require.NoError(t, worker.Handle(context.Background(), fx.queue.enqueued[0]))

	stored, getErr := fx.jobsRepo.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ImportStatusFinished, stored.Status)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)
	require.NotNil(t, stored.Result)
	assert.Equal(t, 1, stored.Result.Created)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportWorkerRecordsFailureWithoutRequeue(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{
		schedules: []models.Schedule{draftSchedule("sched-1")},
		sessions:  []models.ScheduledSession{sessionFixture("sess-1", "sched-1", "MONDAY", 9, 11)},
	})
	req := importRequest("sched-1", models.StrategyStrict,
		importCandidate("course-1", "lect-a", "venue-1", "group-a", "MONDAY", 9, 11),
	)
	job, err := fx.service.Enqueue(context.Background(), req, "importer")
	require.NoError(t, err)
	require.Len(t, fx.queue.enqueued, 1)

	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	worker := NewImportWorker(fx.service, fx.jobsRepo, nil, nil)
	assert.NoError(t, worker.Handle(context.Background(), fx.queue.enqueued[0]),
		"failed runs are terminal and must not requeue")

	stored, getErr := fx.jobsRepo.Get(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ImportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "partial import is disabled")
	require.NotNil(t, stored.Result)
	assert.Zero(t, stored.Result.Created)
	assert.Equal(t, 1, stored.Result.Failed)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestImportServiceReviewDecisions(t *testing.T) {
	fx := newImportFixture(t, importFixtureConfig{})
	fx.reviews.items["rev-1"] = &models.ImportReview{
		ID:         "rev-1",
		ScheduleID: "sched-1",
		State: models.ReviewState{
			{Row: 1, ClashType: models.ClashVenueDoubleBooking, Decision: models.ReviewPending},
		},
	}

	review, err := fx.service.Review(context.Background(), "rev-1")
	require.NoError(t, err)
	assert.Equal(t, "sched-1", review.ScheduleID)

	list, err := fx.service.Reviews(context.Background(), "sched-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	decided := models.ReviewState{
		{Row: 1, ClashType: models.ClashVenueDoubleBooking, Decision: models.ReviewApproved},
	}
	require.NoError(t, fx.service.SaveReviewDecisions(context.Background(), "rev-1", decided))
	assert.Equal(t, models.ReviewApproved, fx.reviews.items["rev-1"].State[0].Decision)

	err = fx.service.SaveReviewDecisions(context.Background(), "rev-1", models.ReviewState{
		{Row: 1, Decision: models.ReviewDecision("maybe")},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = fx.service.SaveReviewDecisions(context.Background(), "missing", decided)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type importFixtureConfig struct {
	schedules []models.Schedule
	sessions  []models.ScheduledSession
	refs      DetectionContext
}

type importFixture struct {
	service  *ImportService
	sessions *importSessionStoreStub
	reviews  *reviewStoreStub
	jobsRepo *jobStoreStub
	queue    *dispatcherStub
	audits   *auditWriterStub
	mock     sqlmock.Sqlmock
}

func newImportFixture(t *testing.T, cfg importFixtureConfig) *importFixture {
	schedules := newScheduleStoreStub(cfg.schedules)
	sessions := &importSessionStoreStub{sessionStoreStub: newSessionStoreStub(cfg.sessions)}
	reviews := &reviewStoreStub{items: make(map[string]*models.ImportReview)}
	jobsRepo := &jobStoreStub{items: make(map[string]*models.ImportJob)}
	queue := &dispatcherStub{}
	audits := &auditWriterStub{}
	units, mock := newUnitRunnerMock(t)

	service := NewImportService(
		schedules,
		sessions,
		reviews,
		audits,
		jobsRepo,
		queue,
		referenceProviderStub{refs: cfg.refs},
		units,
		NewClashDetector(),
		nil,
		nil,
		nil,
		nil,
		ImportServiceConfig{},
	)
	return &importFixture{
		service:  service,
		sessions: sessions,
		reviews:  reviews,
		jobsRepo: jobsRepo,
		queue:    queue,
		audits:   audits,
		mock:     mock,
	}
}

func importCandidate(course, lecturer, venue, group, day string, startHour, endHour int) models.SessionCandidate {
	return models.SessionCandidate{
		CourseID:        course,
		LecturerID:      lecturer,
		VenueID:         venue,
		StudentGroupIDs: []string{group},
		StartTime:       time.Date(2026, 9, 7, startHour, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 9, 7, endHour, 0, 0, 0, time.UTC),
		DayOfWeek:       day,
	}
}

func importRequest(scheduleID string, strategy models.ConflictStrategy, candidates ...models.SessionCandidate) dto.ImportRequest {
	return dto.ImportRequest{
		ScheduleID: scheduleID,
		Strategy:   strategy,
		Candidates: candidates,
	}
}

func expectSavepoint(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^RELEASE SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectSavepointRollback(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
}

type importSessionStoreStub struct {
	*sessionStoreStub
	failCreateCourse string
	verifyDrop       int
}

func (s *importSessionStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error {
	if s.failCreateCourse != "" && session.CourseID == s.failCreateCourse {
		return errors.New("insert rejected")
	}
	return s.sessionStoreStub.Create(ctx, exec, session)
}

func (s *importSessionStoreStub) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.ScheduledSession, error) {
	out := make([]models.ScheduledSession, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	if s.verifyDrop > 0 && len(out) >= s.verifyDrop {
		out = out[:len(out)-s.verifyDrop]
	}
	return out, nil
}

type reviewStoreStub struct {
	items map[string]*models.ImportReview
	seq   int
}

func (s *reviewStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, review *models.ImportReview) error {
	if review.ID == "" {
		s.seq++
		review.ID = fmt.Sprintf("review-%d", s.seq)
	}
	stored := *review
	s.items[review.ID] = &stored
	return nil
}

func (s *reviewStoreStub) GetByID(ctx context.Context, id string) (*models.ImportReview, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (s *reviewStoreStub) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ImportReview, error) {
	var out []models.ImportReview
	for _, item := range s.items {
		if item.ScheduleID == scheduleID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *reviewStoreStub) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, state models.ReviewState) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.State = state
	return nil
}

type jobStoreStub struct {
	items map[string]*models.ImportJob
}

func (s *jobStoreStub) Save(ctx context.Context, job *models.ImportJob) error {
	stored := *job
	s.items[job.ID] = &stored
	return nil
}

func (s *jobStoreStub) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "import job not found")
	}
	copied := *item
	return &copied, nil
}

type dispatcherStub struct {
	enqueued []jobs.Job
	fail     bool
}

func (s *dispatcherStub) Enqueue(job jobs.Job) error {
	if s.fail {
		return errors.New("queue full")
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *dispatcherStub) Depth() int {
	return len(s.enqueued)
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/jobs"
	"github.com/jak0d/timetiba-sub002/pkg/txmanager"
)

type importScheduleStore interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
}

type importSessionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error
	ListBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) ([]models.ScheduledSession, error)
	ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.ScheduledSession, error)
}

type reviewStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, review *models.ImportReview) error
	GetByID(ctx context.Context, id string) (*models.ImportReview, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ImportReview, error)
	UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, state models.ReviewState) error
}

type importJobStore interface {
	Save(ctx context.Context, job *models.ImportJob) error
	Get(ctx context.Context, id string) (*models.ImportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Depth() int
}

const importJobType = "schedule-import"

// importJobPayload rides the in-memory queue between Enqueue and the worker.
type importJobPayload struct {
	Request dto.ImportRequest
	Actor   string
}

// ImportServiceConfig tunes the import unit of work.
type ImportServiceConfig struct {
	Run              txmanager.Options
	DefaultBatchSize int
}

// ImportService reconciles bulk candidate sessions into a schedule. A run
// executes inside one outer transaction with retries disabled: imports are
// not safely re-playable. Rows are processed in fixed batches; each clashing
// row is resolved by the configured strategy, and accepted rows are folded
// into the in-memory session list so later rows see them.
type ImportService struct {
	schedules importScheduleStore
	sessions  importSessionStore
	reviews   reviewStore
	audits    auditWriter
	jobStore  importJobStore
	queue     jobDispatcher
	refs      referenceProvider
	units     unitRunner
	detector  *ClashDetector
	repair    RepairPolicy
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ImportServiceConfig
}

// NewImportService wires the reconciliation pipeline. The run transaction
// gets a five minute timeout unless configured otherwise and never retries.
func NewImportService(
	schedules importScheduleStore,
	sessions importSessionStore,
	reviews reviewStore,
	audits auditWriter,
	jobStore importJobStore,
	queue jobDispatcher,
	refs referenceProvider,
	units unitRunner,
	detector *ClashDetector,
	repair RepairPolicy,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ImportServiceConfig,
) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewClashDetector()
	}
	if repair == nil {
		repair = NewGreedyFirstFit(detector)
	}
	if cfg.Run.Timeout <= 0 {
		cfg.Run.Timeout = 5 * time.Minute
	}
	cfg.Run.MaxAttempts = 1
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 50
	}
	return &ImportService{
		schedules: schedules,
		sessions:  sessions,
		reviews:   reviews,
		audits:    audits,
		jobStore:  jobStore,
		queue:     queue,
		refs:      refs,
		units:     units,
		detector:  detector,
		repair:    repair,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run executes an import synchronously. The result enumerates every row
// outcome even when the run aborts; on rollback the created count and id
// list are zeroed because nothing was persisted.
func (s *ImportService) Run(ctx context.Context, req dto.ImportRequest, actor string) (*models.ImportResult, error) {
	return s.run(ctx, req, actor, nil)
}

func (s *ImportService) run(ctx context.Context, req dto.ImportRequest, actor string, jobID *string) (*models.ImportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	if !req.Strategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown conflict strategy %q", req.Strategy))
	}
	refs, err := s.refs.Context(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference data")
	}

	run := &importRun{
		req:       req,
		refs:      refs,
		batchSize: req.BatchSize,
		result: &models.ImportResult{
			ScheduleID:   req.ScheduleID,
			TotalRows:    len(req.Candidates),
			ValidateOnly: req.ValidateOnly,
		},
	}
	if run.batchSize <= 0 {
		run.batchSize = s.cfg.DefaultBatchSize
	}

	runErr := s.units.Run(ctx, &s.cfg.Run, func(ctx context.Context, tx *sqlx.Tx) error {
		schedule, err := s.schedules.GetForUpdate(ctx, tx, req.ScheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
		}
		if schedule.Status == models.ScheduleStatusArchived {
			return appErrors.Clone(appErrors.ErrArchived, "cannot import into an archived schedule")
		}

		existing, err := s.sessions.ListBySchedule(ctx, tx, req.ScheduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
		}
		run.existing = existing

		for start := 0; start < len(req.Candidates); start += run.batchSize {
			end := start + run.batchSize
			if end > len(req.Candidates) {
				end = len(req.Candidates)
			}
			for offset, candidate := range req.Candidates[start:end] {
				if err := s.processRow(ctx, tx, run, start+offset+1, candidate); err != nil {
					return err
				}
			}
		}

		if !req.ValidateOnly && !req.AllowPartialImport && run.result.Failed > 0 {
			return appErrors.Clone(appErrors.ErrPreconditionFailed,
				fmt.Sprintf("%d of %d rows failed and partial import is disabled", run.result.Failed, run.result.TotalRows))
		}

		if !req.ValidateOnly {
			if err := s.verifyCreated(ctx, tx, run); err != nil {
				return err
			}
			if len(run.flagged) > 0 {
				review := &models.ImportReview{
					ScheduleID: req.ScheduleID,
					JobID:      jobID,
					State:      run.flagged,
					CreatedBy:  actor,
				}
				if err := s.reviews.Create(ctx, tx, review); err != nil {
					return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist review queue")
				}
			}
			if err := s.recordRunAudit(ctx, tx, actor, run.result, req.Strategy); err != nil {
				return err
			}
		}
		return nil
	})
	if runErr != nil {
		run.result.Created = 0
		run.result.CreatedSessionIDs = nil
		return run.result, internalError(runErr, "import run failed")
	}

	s.metrics.RecordImportRun(run.result)
	s.logger.Info("import run finished",
		zap.String("schedule_id", req.ScheduleID),
		zap.String("strategy", string(req.Strategy)),
		zap.Int("total", run.result.TotalRows),
		zap.Int("created", run.result.Created),
		zap.Int("failed", run.result.Failed),
		zap.Int("skipped", run.result.Skipped),
		zap.Int("flagged", run.result.Flagged),
		zap.Bool("validate_only", req.ValidateOnly))
	return run.result, nil
}

// importRun accumulates the in-flight state of one pipeline execution.
type importRun struct {
	req       dto.ImportRequest
	refs      DetectionContext
	existing  []models.ScheduledSession
	flagged   models.ReviewState
	result    *models.ImportResult
	batchSize int
}

func (s *ImportService) processRow(ctx context.Context, tx *sqlx.Tx, run *importRun, row int, candidate models.SessionCandidate) error {
	rowErrs, day := validateCandidate(row, candidate)
	if len(rowErrs) > 0 {
		run.result.Failed++
		run.result.RowErrors = append(run.result.RowErrors, rowErrs...)
		return nil
	}

	session := candidateSession(run.req.ScheduleID, candidate, day)
	clashes := s.detector.DetectForCandidate(session, run.existing)

	if len(clashes) > 0 {
		switch run.req.Strategy {
		case models.StrategyStrict:
			run.result.Failed++
			run.result.Conflicts = append(run.result.Conflicts, clashes...)
			run.result.RowErrors = append(run.result.RowErrors, models.ImportRowError{
				Row:     row,
				Message: fmt.Sprintf("%d conflicts detected", len(clashes)),
			})
			for _, clash := range clashes {
				run.result.ResolutionAttempts = append(run.result.ResolutionAttempts, models.ResolutionAttempt{
					Row:       row,
					ClashID:   clash.ID,
					ClashType: clash.Type,
					Action:    "skipped",
				})
			}
			return nil

		case models.StrategySkip:
			run.result.Skipped++
			run.result.Conflicts = append(run.result.Conflicts, clashes...)
			for _, clash := range clashes {
				run.result.ResolutionAttempts = append(run.result.ResolutionAttempts, models.ResolutionAttempt{
					Row:       row,
					ClashID:   clash.ID,
					ClashType: clash.Type,
					Action:    "skipped",
					Success:   true,
				})
			}
			return nil

		case models.StrategyManualReview:
			run.result.Flagged++
			run.result.Conflicts = append(run.result.Conflicts, clashes...)
			for _, clash := range clashes {
				run.result.ResolutionAttempts = append(run.result.ResolutionAttempts, models.ResolutionAttempt{
					Row:       row,
					ClashID:   clash.ID,
					ClashType: clash.Type,
					Action:    "flagged",
				})
				run.flagged = append(run.flagged, models.ReviewEntry{
					Row:       row,
					ClashType: clash.Type,
					Candidate: candidate,
					Clash:     clash,
					Decision:  models.ReviewPending,
				})
			}
			return nil

		case models.StrategyAutomatic:
			outcome := s.repair.Repair(session, clashes, run.existing, run.refs)
			for i := range outcome.Attempts {
				outcome.Attempts[i].Row = row
			}
			run.result.ResolutionAttempts = append(run.result.ResolutionAttempts, outcome.Attempts...)
			if !outcome.Repaired {
				run.result.Failed++
				run.result.Conflicts = append(run.result.Conflicts, clashes...)
				run.result.RowErrors = append(run.result.RowErrors, models.ImportRowError{
					Row:     row,
					Message: fmt.Sprintf("automatic repair could not resolve %d conflicts", len(clashes)),
				})
				return nil
			}
			session = outcome.Session
		}
	}

	if run.req.ValidateOnly {
		run.result.Created++
		run.existing = append(run.existing, session)
		return nil
	}

	persistErr := txmanager.WithSavepoint(ctx, tx, func(ctx context.Context, tx *sqlx.Tx) error {
		return s.sessions.Create(ctx, tx, &session)
	})
	if persistErr != nil {
		s.logger.Warn("import row persist failed",
			zap.Int("row", row),
			zap.String("schedule_id", run.req.ScheduleID),
			zap.Error(persistErr))
		run.result.Failed++
		run.result.RowErrors = append(run.result.RowErrors, models.ImportRowError{
			Row:     row,
			Message: "failed to persist session",
		})
		return nil
	}

	run.result.Created++
	run.result.CreatedSessionIDs = append(run.result.CreatedSessionIDs, session.ID)
	run.existing = append(run.existing, session)
	return nil
}

// verifyCreated re-reads every created session and the owning schedule
// inside the same transaction. Any discrepancy aborts the whole run.
func (s *ImportService) verifyCreated(ctx context.Context, tx *sqlx.Tx, run *importRun) error {
	if len(run.result.CreatedSessionIDs) == 0 {
		return nil
	}
	persisted, err := s.sessions.ListByIDs(ctx, tx, run.result.CreatedSessionIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, "failed to verify created sessions")
	}
	if len(persisted) != len(run.result.CreatedSessionIDs) {
		return appErrors.Clone(appErrors.ErrIntegrity,
			fmt.Sprintf("expected %d created sessions, found %d", len(run.result.CreatedSessionIDs), len(persisted)))
	}
	if _, err := s.schedules.GetByID(ctx, tx, run.req.ScheduleID); err != nil {
		return appErrors.Clone(appErrors.ErrIntegrity, "schedule vanished during import")
	}
	return nil
}

func (s *ImportService) recordRunAudit(ctx context.Context, tx *sqlx.Tx, actor string, result *models.ImportResult, strategy models.ConflictStrategy) error {
	entry := &models.AuditLog{
		Action:     models.AuditActionImportRun,
		Resource:   auditResourceSchedule,
		ResourceID: &result.ScheduleID,
		IPAddress:  "system",
		UserAgent:  "import-service",
	}
	if actor != "" {
		entry.ActorID = &actor
	}
	entry.NewValues, _ = json.Marshal(map[string]interface{}{
		"strategy":   strategy,
		"total_rows": result.TotalRows,
		"created":    result.Created,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"flagged":    result.Flagged,
	})
	if err := s.audits.Create(ctx, tx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit entry")
	}
	return nil
}

// Enqueue stores a queued job record and hands the request to the worker
// pool. Options ride the payload unmodified.
func (s *ImportService) Enqueue(ctx context.Context, req dto.ImportRequest, actor string) (*models.ImportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	if !req.Strategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown conflict strategy %q", req.Strategy))
	}
	if s.jobStore == nil || s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "asynchronous imports are not configured")
	}

	job := &models.ImportJob{
		ID:         uuid.NewString(),
		ScheduleID: req.ScheduleID,
		Options:    req.Options(),
		Status:     models.ImportStatusQueued,
		TotalRows:  len(req.Candidates),
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.jobStore.Save(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import job")
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      job.ID,
		Type:    importJobType,
		Payload: importJobPayload{Request: req, Actor: actor},
	})
	if err != nil {
		job.Status = models.ImportStatusFailed
		message := "failed to enqueue import job"
		job.ErrorMessage = &message
		if saveErr := s.jobStore.Save(ctx, job); saveErr != nil {
			s.logger.Warn("failed to mark unqueued import job", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue import job")
	}

	s.metrics.SetQueueDepth(s.queue.Depth())
	s.logger.Info("import job enqueued",
		zap.String("job_id", job.ID),
		zap.String("schedule_id", req.ScheduleID),
		zap.Int("total_rows", job.TotalRows))
	return job, nil
}

// Job returns the polled state of an asynchronous import.
func (s *ImportService) Job(ctx context.Context, jobID string) (*models.ImportJob, error) {
	if s.jobStore == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "asynchronous imports are not configured")
	}
	job, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		return nil, internalError(err, "failed to load import job")
	}
	return job, nil
}

// Reviews lists the persisted review queues for a schedule.
func (s *ImportService) Reviews(ctx context.Context, scheduleID string) ([]models.ImportReview, error) {
	reviews, err := s.reviews.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list import reviews")
	}
	return reviews, nil
}

// Review returns one stored review queue.
func (s *ImportService) Review(ctx context.Context, id string) (*models.ImportReview, error) {
	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import review")
	}
	return review, nil
}

// SaveReviewDecisions replaces the decision state of a review queue.
// Decisions are recorded for downstream consumers, not acted on here.
func (s *ImportService) SaveReviewDecisions(ctx context.Context, id string, state models.ReviewState) error {
	for _, entry := range state {
		if !entry.Decision.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown review decision %q", entry.Decision))
		}
	}
	if err := s.reviews.UpdateState(ctx, nil, id, state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "import review not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update import review")
	}
	return nil
}

// validateCandidate checks the structural requirements of one candidate row.
// Referential existence is not checked here; unknown ids surface later as
// detection context misses.
func validateCandidate(row int, candidate models.SessionCandidate) ([]models.ImportRowError, models.DayOfWeek) {
	var rowErrs []models.ImportRowError
	add := func(field, message string) {
		rowErrs = append(rowErrs, models.ImportRowError{Row: row, Field: field, Message: message})
	}

	if strings.TrimSpace(candidate.CourseID) == "" {
		add("course_id", "course id is required")
	}
	if strings.TrimSpace(candidate.LecturerID) == "" {
		add("lecturer_id", "lecturer id is required")
	}
	if strings.TrimSpace(candidate.VenueID) == "" {
		add("venue_id", "venue id is required")
	}
	if len(candidate.StudentGroupIDs) == 0 {
		add("student_group_ids", "at least one student group is required")
	} else {
		for _, id := range candidate.StudentGroupIDs {
			if strings.TrimSpace(id) == "" {
				add("student_group_ids", "student group ids must not be blank")
				break
			}
		}
	}
	if candidate.StartTime.IsZero() {
		add("start_time", "start time is required")
	}
	if candidate.EndTime.IsZero() {
		add("end_time", "end time is required")
	}
	if !candidate.StartTime.IsZero() && !candidate.EndTime.IsZero() && !candidate.EndTime.After(candidate.StartTime) {
		add("end_time", "end time must be after start time")
	}

	day, err := models.ParseDayOfWeek(candidate.DayOfWeek)
	if err != nil {
		add("day_of_week", err.Error())
	}
	return rowErrs, day
}

func candidateSession(scheduleID string, candidate models.SessionCandidate, day models.DayOfWeek) models.ScheduledSession {
	return models.ScheduledSession{
		ID:              uuid.NewString(),
		ScheduleID:      scheduleID,
		CourseID:        candidate.CourseID,
		LecturerID:      candidate.LecturerID,
		VenueID:         candidate.VenueID,
		StudentGroupIDs: pq.StringArray(candidate.StudentGroupIDs),
		StartTime:       candidate.StartTime,
		EndTime:         candidate.EndTime,
		DayOfWeek:       day,
		WeekNumber:      candidate.WeekNumber,
		Notes:           candidate.Notes,
	}
}

// ImportWorker drains the import queue. Failed runs are recorded on the job
// and never requeued; the handler always reports success to the queue.
type ImportWorker struct {
	service *ImportService
	jobs    importJobStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewImportWorker wires a worker over the import service and job store.
func NewImportWorker(service *ImportService, jobStore importJobStore, metrics *MetricsService, logger *zap.Logger) *ImportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportWorker{service: service, jobs: jobStore, metrics: metrics, logger: logger}
}

// Handle processes one queued import job.
func (w *ImportWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(importJobPayload)
	if !ok {
		w.logger.Error("unexpected import job payload", zap.String("job_id", job.ID))
		return nil
	}

	record, err := w.jobs.Get(ctx, job.ID)
	if err != nil {
		w.logger.Error("import job record missing", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	started := time.Now().UTC()
	record.Status = models.ImportStatusProcessing
	record.StartedAt = &started
	if err := w.jobs.Save(ctx, record); err != nil {
		w.logger.Warn("failed to mark import job processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	result, runErr := w.service.run(ctx, payload.Request, payload.Actor, &record.ID)

	finished := time.Now().UTC()
	record.FinishedAt = &finished
	record.Result = result
	if runErr != nil {
		record.Status = models.ImportStatusFailed
		message := appErrors.FromError(runErr).Message
		record.ErrorMessage = &message
		w.logger.Warn("import job failed",
			zap.String("job_id", job.ID),
			zap.String("schedule_id", payload.Request.ScheduleID),
			zap.Error(runErr))
	} else {
		record.Status = models.ImportStatusFinished
	}
	if err := w.jobs.Save(ctx, record); err != nil {
		w.logger.Error("failed to store import job result", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.RecordImportJob(record.Status)
	return nil
}

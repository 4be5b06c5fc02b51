package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jak0d/timetiba-sub002/internal/dto"
	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/txmanager"
)

type scheduleStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
}

type sessionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduledSession) error
	Delete(ctx context.Context, exec sqlx.ExtContext, scheduleID, sessionID string) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduledSession, error)
	ListBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) ([]models.ScheduledSession, error)
}

type auditWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type referenceProvider interface {
	Context(ctx context.Context) (DetectionContext, error)
}

type unitRunner interface {
	Run(ctx context.Context, opts *txmanager.Options, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// auditResourceSchedule scopes schedule and session audit entries to the
// owning schedule so one query returns the full trail.
const auditResourceSchedule = "schedule"

// ScheduleServiceConfig tunes the transactional units of work.
type ScheduleServiceConfig struct {
	Mutation        txmanager.Options
	AuditTrailLimit int
}

// ScheduleService owns the timetable lifecycle: draft creation, session
// mutations, publication and archival. Session mutations run the incremental
// clash checks before persisting; publication runs the full detection suite.
// Every mutation locks the owning schedule row and commits its audit entry in
// the same unit of work.
type ScheduleService struct {
	schedules scheduleStore
	sessions  sessionStore
	audits    auditWriter
	refs      referenceProvider
	units     unitRunner
	detector  *ClashDetector
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleServiceConfig
}

// NewScheduleService wires the scheduling engine.
func NewScheduleService(
	schedules scheduleStore,
	sessions sessionStore,
	audits auditWriter,
	refs referenceProvider,
	units unitRunner,
	detector *ClashDetector,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleServiceConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewClashDetector()
	}
	return &ScheduleService{
		schedules: schedules,
		sessions:  sessions,
		audits:    audits,
		refs:      refs,
		units:     units,
		detector:  detector,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Create opens a new draft schedule for an academic period.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleRequest, actor string) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	schedule := &models.Schedule{
		Name:           req.Name,
		AcademicPeriod: req.AcademicPeriod,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}

	err := s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.schedules.Create(ctx, tx, schedule); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
		}
		return s.recordAudit(ctx, tx, actor, models.AuditActionScheduleCreate, schedule.ID, nil, schedule)
	})
	if err != nil {
		return nil, internalError(err, "failed to create schedule")
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", schedule.ID),
		zap.String("academic_period", schedule.AcademicPeriod))
	return schedule, nil
}

// Get loads a schedule together with its sessions.
func (s *ScheduleService) Get(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	sessionList, err := s.sessions.ListBySchedule(ctx, nil, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
	}
	schedule.Sessions = sessionList
	return schedule, nil
}

// List returns schedules matching the query filters.
func (s *ScheduleService) List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, models.Pagination, error) {
	filter := models.ScheduleFilter{
		AcademicPeriod: query.AcademicPeriod,
		Page:           query.Page,
		PageSize:       query.PageSize,
		SortBy:         query.SortBy,
		SortOrder:      query.SortOrder,
	}
	if query.Status != "" {
		status := models.ScheduleStatus(query.Status)
		if !status.Valid() {
			return nil, models.Pagination{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown schedule status %q", query.Status))
		}
		filter.Status = status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}

	pagination := models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return schedules, pagination, nil
}

// AddSession appends a session to a schedule after running the incremental
// clash checks against the schedule's existing sessions.
func (s *ScheduleService) AddSession(ctx context.Context, scheduleID string, req dto.SessionRequest, actor string) (*models.ScheduledSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	day, err := models.ParseDayOfWeek(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid day of week")
	}

	candidate := sessionFromRequest(scheduleID, uuid.NewString(), req, day)

	err = s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.lockMutable(ctx, tx, scheduleID); err != nil {
			return err
		}
		existing, err := s.sessions.ListBySchedule(ctx, tx, scheduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
		}
		if clashes := s.detector.DetectForCandidate(candidate, existing); len(clashes) > 0 {
			s.metrics.RecordMutationConflict(len(clashes))
			return conflictError("session conflicts with existing bookings", clashes)
		}
		if err := s.sessions.Create(ctx, tx, &candidate); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
		}
		return s.recordAudit(ctx, tx, actor, models.AuditActionSessionAdd, scheduleID, nil, candidate)
	})
	if err != nil {
		return nil, internalError(err, "failed to add session")
	}

	s.logger.Info("session added",
		zap.String("schedule_id", scheduleID),
		zap.String("session_id", candidate.ID))
	return &candidate, nil
}

// UpdateSession replaces the mutable fields of an existing session. The
// updated timing is checked against every other session in the schedule.
func (s *ScheduleService) UpdateSession(ctx context.Context, scheduleID, sessionID string, req dto.SessionRequest, actor string) (*models.ScheduledSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	day, err := models.ParseDayOfWeek(req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid day of week")
	}

	var updated models.ScheduledSession
	err = s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.lockMutable(ctx, tx, scheduleID); err != nil {
			return err
		}
		current, err := s.sessions.GetByID(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
		}
		if current.ScheduleID != scheduleID {
			return appErrors.Clone(appErrors.ErrNotFound, "session does not belong to this schedule")
		}

		updated = sessionFromRequest(scheduleID, sessionID, req, day)
		updated.CreatedAt = current.CreatedAt

		existing, err := s.sessions.ListBySchedule(ctx, tx, scheduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
		}
		if clashes := s.detector.DetectForCandidate(updated, existing); len(clashes) > 0 {
			s.metrics.RecordMutationConflict(len(clashes))
			return conflictError("updated session conflicts with existing bookings", clashes)
		}
		if err := s.sessions.Update(ctx, tx, &updated); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
		}
		return s.recordAudit(ctx, tx, actor, models.AuditActionSessionUpdate, scheduleID, current, updated)
	})
	if err != nil {
		return nil, internalError(err, "failed to update session")
	}
	return &updated, nil
}

// RemoveSession deletes a session. Removal never needs clash checks; taking
// a booking out of a timetable cannot introduce a conflict.
func (s *ScheduleService) RemoveSession(ctx context.Context, scheduleID, sessionID, actor string) error {
	err := s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := s.lockMutable(ctx, tx, scheduleID); err != nil {
			return err
		}
		current, err := s.sessions.GetByID(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
		}
		if current.ScheduleID != scheduleID {
			return appErrors.Clone(appErrors.ErrNotFound, "session does not belong to this schedule")
		}
		if err := s.sessions.Delete(ctx, tx, scheduleID, sessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
		}
		return s.recordAudit(ctx, tx, actor, models.AuditActionSessionRemove, scheduleID, current, nil)
	})
	if err != nil {
		return internalError(err, "failed to remove session")
	}
	return nil
}

// Publish runs the full detection suite and, when the schedule is clean,
// stamps the publication fields and bumps the version. A report with blocking
// clashes rejects the publish and leaves the schedule untouched.
func (s *ScheduleService) Publish(ctx context.Context, scheduleID, publishedBy string) (*models.Schedule, error) {
	if publishedBy == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "publishedBy is required")
	}
	refs, err := s.refs.Context(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference data")
	}

	var schedule *models.Schedule
	err = s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := s.schedules.GetForUpdate(ctx, tx, scheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
		}
		if !current.Status.CanTransition(models.ScheduleStatusPublished) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot publish schedule in status %s", current.Status))
		}

		sessionList, err := s.sessions.ListBySchedule(ctx, tx, scheduleID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
		}
		report := s.detector.Detect(sessionList, refs)
		s.metrics.RecordDetectionRun(report)
		if !report.IsValid {
			s.metrics.RecordPublish(false)
			return conflictError("schedule has blocking clashes", report.Clashes)
		}

		now := time.Now().UTC()
		previous := current.Status
		current.Status = models.ScheduleStatusPublished
		current.PublishedAt = &now
		current.PublishedBy = &publishedBy
		current.Version++
		if err := s.schedules.UpdateStatus(ctx, tx, current); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish schedule")
		}

		schedule = current
		return s.recordAudit(ctx, tx, publishedBy, models.AuditActionSchedulePublish, scheduleID,
			map[string]interface{}{"status": previous, "version": current.Version - 1},
			map[string]interface{}{"status": current.Status, "version": current.Version, "published_at": now})
	})
	if err != nil {
		return nil, internalError(err, "failed to publish schedule")
	}

	s.metrics.RecordPublish(true)
	s.logger.Info("schedule published",
		zap.String("schedule_id", schedule.ID),
		zap.Int("version", schedule.Version),
		zap.String("published_by", publishedBy))
	return schedule, nil
}

// Archive retires a schedule. Any non-archived status may be archived;
// archived schedules are terminal.
func (s *ScheduleService) Archive(ctx context.Context, scheduleID, actor string) (*models.Schedule, error) {
	return s.transition(ctx, scheduleID, models.ScheduleStatusArchived, models.AuditActionScheduleArchive, actor)
}

// MarkUnderReview moves a draft schedule into the review stage.
func (s *ScheduleService) MarkUnderReview(ctx context.Context, scheduleID, actor string) (*models.Schedule, error) {
	return s.transition(ctx, scheduleID, models.ScheduleStatusUnderReview, models.AuditActionScheduleReview, actor)
}

// ReopenDraft sends a schedule under review back to draft.
func (s *ScheduleService) ReopenDraft(ctx context.Context, scheduleID, actor string) (*models.Schedule, error) {
	return s.transition(ctx, scheduleID, models.ScheduleStatusDraft, models.AuditActionScheduleReopen, actor)
}

// Validate runs the full detection suite without mutating anything.
func (s *ScheduleService) Validate(ctx context.Context, scheduleID string) (*dto.ValidationResponse, error) {
	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	sessionList, err := s.sessions.ListBySchedule(ctx, nil, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
	}
	refs, err := s.refs.Context(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference data")
	}

	report := s.detector.Detect(sessionList, refs)
	s.metrics.RecordDetectionRun(report)
	return &dto.ValidationResponse{ScheduleID: schedule.ID, Report: report}, nil
}

// AuditTrail returns the most recent audit entries for a schedule.
func (s *ScheduleService) AuditTrail(ctx context.Context, scheduleID string) ([]models.AuditLog, error) {
	if _, err := s.schedules.GetByID(ctx, nil, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	entries, err := s.audits.ListByResource(ctx, auditResourceSchedule, scheduleID, s.cfg.AuditTrailLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return entries, nil
}

// transition moves a schedule along the lifecycle graph.
func (s *ScheduleService) transition(ctx context.Context, scheduleID string, next models.ScheduleStatus, action, actor string) (*models.Schedule, error) {
	var schedule *models.Schedule
	err := s.units.Run(ctx, &s.cfg.Mutation, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := s.schedules.GetForUpdate(ctx, tx, scheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
		}
		if !current.Status.CanTransition(next) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move schedule from %s to %s", current.Status, next))
		}

		previous := current.Status
		current.Status = next
		if err := s.schedules.UpdateStatus(ctx, tx, current); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
		}

		schedule = current
		return s.recordAudit(ctx, tx, actor, action, scheduleID,
			map[string]interface{}{"status": previous},
			map[string]interface{}{"status": next})
	})
	if err != nil {
		return nil, internalError(err, "failed to update schedule status")
	}

	s.logger.Info("schedule status changed",
		zap.String("schedule_id", schedule.ID),
		zap.String("status", string(schedule.Status)))
	return schedule, nil
}

// lockMutable locks the schedule row and rejects mutations on archived
// schedules. Published schedules stay mutable; edits to a published timetable
// surface on the next publish as a new version.
func (s *ScheduleService) lockMutable(ctx context.Context, tx *sqlx.Tx, scheduleID string) (*models.Schedule, error) {
	schedule, err := s.schedules.GetForUpdate(ctx, tx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if schedule.Status == models.ScheduleStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrArchived, "cannot modify an archived schedule")
	}
	return schedule, nil
}

func (s *ScheduleService) recordAudit(ctx context.Context, tx *sqlx.Tx, actor, action, scheduleID string, oldValues, newValues interface{}) error {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   auditResourceSchedule,
		ResourceID: &scheduleID,
		IPAddress:  "system",
		UserAgent:  "schedule-service",
	}
	if actor != "" {
		entry.ActorID = &actor
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audits.Create(ctx, tx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit entry")
	}
	return nil
}

func sessionFromRequest(scheduleID, sessionID string, req dto.SessionRequest, day models.DayOfWeek) models.ScheduledSession {
	return models.ScheduledSession{
		ID:              sessionID,
		ScheduleID:      scheduleID,
		CourseID:        req.CourseID,
		LecturerID:      req.LecturerID,
		VenueID:         req.VenueID,
		StudentGroupIDs: pq.StringArray(req.StudentGroupIDs),
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DayOfWeek:       day,
		WeekNumber:      req.WeekNumber,
		Notes:           req.Notes,
	}
}

// conflictError wraps detected clashes so handlers can surface the full list.
func conflictError(message string, clashes []models.Clash) error {
	return appErrors.Wrap(
		&models.ClashError{Message: message, Clashes: clashes},
		appErrors.ErrConflict.Code,
		appErrors.ErrConflict.Status,
		message,
	)
}

// internalError passes structured errors through and wraps everything else.
func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

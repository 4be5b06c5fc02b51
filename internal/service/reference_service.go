package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
)

const referenceContextKey = "reference:context"

type venueLister interface {
	List(ctx context.Context) ([]models.Venue, error)
}

type lecturerLister interface {
	List(ctx context.Context) ([]models.Lecturer, error)
}

type courseLister interface {
	List(ctx context.Context) ([]models.Course, error)
}

type studentGroupLister interface {
	List(ctx context.Context) ([]models.StudentGroup, error)
}

type referenceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// referenceSnapshot is the cacheable form of the detection context.
type referenceSnapshot struct {
	Venues        []models.Venue        `json:"venues"`
	Lecturers     []models.Lecturer     `json:"lecturers"`
	Courses       []models.Course       `json:"courses"`
	StudentGroups []models.StudentGroup `json:"student_groups"`
}

// ReferenceService assembles the reference context the detector and the
// import pipeline consume. Reads go through a short-TTL cache; reference
// records themselves are maintained upstream.
type ReferenceService struct {
	venues    venueLister
	lecturers lecturerLister
	courses   courseLister
	groups    studentGroupLister
	cache     referenceCache
	metrics   *MetricsService
	ttl       time.Duration
	logger    *zap.Logger
}

// NewReferenceService wires the reference readers and cache.
func NewReferenceService(
	venues venueLister,
	lecturers lecturerLister,
	courses courseLister,
	groups studentGroupLister,
	cache referenceCache,
	metrics *MetricsService,
	ttl time.Duration,
	logger *zap.Logger,
) *ReferenceService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{
		venues:    venues,
		lecturers: lecturers,
		courses:   courses,
		groups:    groups,
		cache:     cache,
		metrics:   metrics,
		ttl:       ttl,
		logger:    logger,
	}
}

// Context returns the detection context, served from cache when possible.
func (s *ReferenceService) Context(ctx context.Context) (DetectionContext, error) {
	if s.cache != nil {
		var snapshot referenceSnapshot
		err := s.cache.Get(ctx, referenceContextKey, &snapshot)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return NewDetectionContext(snapshot.Venues, snapshot.Lecturers, snapshot.Courses, snapshot.StudentGroups), nil
		}
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("reference cache read failed", zap.Error(err))
		}
	}

	snapshot, err := s.load(ctx)
	if err != nil {
		return DetectionContext{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, referenceContextKey, snapshot, s.ttl); err != nil {
			s.logger.Warn("reference cache write failed", zap.Error(err))
		}
	}
	return NewDetectionContext(snapshot.Venues, snapshot.Lecturers, snapshot.Courses, snapshot.StudentGroups), nil
}

// Refresh drops the cached snapshot and rebuilds it from the repositories.
// Upstream systems call this after changing reference records.
func (s *ReferenceService) Refresh(ctx context.Context) (DetectionContext, error) {
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "reference:*"); err != nil {
			s.logger.Warn("reference cache invalidation failed", zap.Error(err))
		}
	}

	snapshot, err := s.load(ctx)
	if err != nil {
		return DetectionContext{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, referenceContextKey, snapshot, s.ttl); err != nil {
			s.logger.Warn("reference cache write failed", zap.Error(err))
		}
	}
	return NewDetectionContext(snapshot.Venues, snapshot.Lecturers, snapshot.Courses, snapshot.StudentGroups), nil
}

func (s *ReferenceService) load(ctx context.Context) (referenceSnapshot, error) {
	var snapshot referenceSnapshot

	venues, err := s.venues.List(ctx)
	if err != nil {
		return snapshot, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load venues")
	}
	lecturers, err := s.lecturers.List(ctx)
	if err != nil {
		return snapshot, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturers")
	}
	courses, err := s.courses.List(ctx)
	if err != nil {
		return snapshot, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	groups, err := s.groups.List(ctx)
	if err != nil {
		return snapshot, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student groups")
	}

	snapshot = referenceSnapshot{
		Venues:        venues,
		Lecturers:     lecturers,
		Courses:       courses,
		StudentGroups: groups,
	}
	return snapshot, nil
}

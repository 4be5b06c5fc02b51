package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
)

func TestReferenceServiceContextLoadsAndCaches(t *testing.T) {
	cache := &referenceCacheStub{}
	fx := newReferenceFixture(cache)

	refs, err := fx.service.Context(context.Background())
	require.NoError(t, err)

	venue, ok := refs.Venue("venue-1")
	require.True(t, ok)
	assert.Equal(t, "Lab A", venue.Name)
	assert.Equal(t, 1, fx.venues.calls)
	assert.Equal(t, 1, fx.groups.calls)

	require.Len(t, cache.sets, 1)
	assert.Equal(t, "reference:context", cache.sets[0].key)
	assert.Equal(t, time.Minute, cache.sets[0].ttl)
}

func TestReferenceServiceContextServedFromCache(t *testing.T) {
	snapshot := referenceSnapshot{
		Venues: []models.Venue{{ID: "venue-9", Name: "Hall B", Capacity: 120}},
	}
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)

	cache := &referenceCacheStub{payload: payload}
	fx := newReferenceFixture(cache)

	refs, err := fx.service.Context(context.Background())
	require.NoError(t, err)

	venue, ok := refs.Venue("venue-9")
	require.True(t, ok)
	assert.Equal(t, "Hall B", venue.Name)
	assert.Zero(t, fx.venues.calls, "cache hits must not touch the repositories")
	assert.Zero(t, fx.lecturers.calls)
	assert.Empty(t, cache.sets)
}

func TestReferenceServiceContextSurvivesCacheFailure(t *testing.T) {
	cache := &referenceCacheStub{getErr: errors.New("redis gone")}
	fx := newReferenceFixture(cache)

	refs, err := fx.service.Context(context.Background())
	require.NoError(t, err)

	_, ok := refs.Venue("venue-1")
	assert.True(t, ok)
	assert.Equal(t, 1, fx.venues.calls)
}

func TestReferenceServiceContextLoadErrorPropagates(t *testing.T) {
	cache := &referenceCacheStub{}
	fx := newReferenceFixture(cache)
	fx.lecturers.err = errors.New("db down")

	_, err := fx.service.Context(context.Background())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	assert.Empty(t, cache.sets, "failed loads must not be cached")
}

func TestReferenceServiceRefreshDropsSnapshot(t *testing.T) {
	snapshot := referenceSnapshot{
		Venues: []models.Venue{{ID: "venue-stale", Name: "Old Hall"}},
	}
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)

	cache := &referenceCacheStub{payload: payload}
	fx := newReferenceFixture(cache)

	refs, err := fx.service.Refresh(context.Background())
	require.NoError(t, err)

	_, stale := refs.Venue("venue-stale")
	assert.False(t, stale)
	_, fresh := refs.Venue("venue-1")
	assert.True(t, fresh)

	require.Len(t, cache.patterns, 1)
	assert.Equal(t, "reference:*", cache.patterns[0])
	require.Len(t, cache.sets, 1)
}

func TestReferenceServiceWorksWithoutCache(t *testing.T) {
	fx := newReferenceFixtureWithCache(nil)

	refs, err := fx.service.Context(context.Background())
	require.NoError(t, err)

	_, ok := refs.Venue("venue-1")
	assert.True(t, ok)
}

type referenceFixture struct {
	service   *ReferenceService
	venues    *venueListerStub
	lecturers *lecturerListerStub
	courses   *courseListerStub
	groups    *groupListerStub
}

func newReferenceFixture(cache *referenceCacheStub) *referenceFixture {
	return newReferenceFixtureWithCache(cache)
}

// newReferenceFixtureWithCache takes the interface so tests can pass a
// genuinely nil cache, which a typed nil pointer would not express.
func newReferenceFixtureWithCache(cache referenceCache) *referenceFixture {
	venues := &venueListerStub{items: []models.Venue{{ID: "venue-1", Name: "Lab A", Capacity: 40}}}
	lecturers := &lecturerListerStub{items: []models.Lecturer{{ID: "lect-1", Name: "Dr Moyo", Department: "CS"}}}
	courses := &courseListerStub{items: []models.Course{{ID: "course-1", Name: "Databases", Code: "CS204"}}}
	groups := &groupListerStub{items: []models.StudentGroup{{ID: "group-1", Name: "CS Year 2", Size: 35}}}

	svc := NewReferenceService(venues, lecturers, courses, groups, cache, NewMetricsService(), time.Minute, nil)
	return &referenceFixture{
		service:   svc,
		venues:    venues,
		lecturers: lecturers,
		courses:   courses,
		groups:    groups,
	}
}

type venueListerStub struct {
	items []models.Venue
	err   error
	calls int
}

func (s *venueListerStub) List(ctx context.Context) ([]models.Venue, error) {
	s.calls++
	return s.items, s.err
}

type lecturerListerStub struct {
	items []models.Lecturer
	err   error
	calls int
}

func (s *lecturerListerStub) List(ctx context.Context) ([]models.Lecturer, error) {
	s.calls++
	return s.items, s.err
}

type courseListerStub struct {
	items []models.Course
	err   error
	calls int
}

func (s *courseListerStub) List(ctx context.Context) ([]models.Course, error) {
	s.calls++
	return s.items, s.err
}

type groupListerStub struct {
	items []models.StudentGroup
	err   error
	calls int
}

func (s *groupListerStub) List(ctx context.Context) ([]models.StudentGroup, error) {
	s.calls++
	return s.items, s.err
}

type cacheSetCall struct {
	key string
	ttl time.Duration
}

type referenceCacheStub struct {
	payload  []byte
	getErr   error
	sets     []cacheSetCall
	patterns []string
}

func (s *referenceCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	if s.payload == nil {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(s.payload, dest)
}

func (s *referenceCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.payload = payload
	s.sets = append(s.sets, cacheSetCall{key: key, ttl: ttl})
	return nil
}

func (s *referenceCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	s.payload = nil
	return nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jak0d/timetiba-sub002/internal/models"
	appErrors "github.com/jak0d/timetiba-sub002/pkg/errors"
	"github.com/jak0d/timetiba-sub002/pkg/export"
	"github.com/jak0d/timetiba-sub002/pkg/storage"
)

type exportScheduleStore interface {
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
}

type exportSessionStore interface {
	ListBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) ([]models.ScheduledSession, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderGrouped(data export.GroupedDataset, title string) ([]byte, error)
}

// ExportFormat selects the rendering backend.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat normalizes a query value. Empty means CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportCSV, "":
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	MaxRows   int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders a schedule's timetable as CSV or PDF, one section
// per teaching day, with reference ids resolved to display names. Rendered
// files are kept on disk behind signed download tokens until cleanup.
type ExportService struct {
	schedules exportScheduleStore
	sessions  exportSessionStore
	refs      referenceProvider
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(
	schedules exportScheduleStore,
	sessions exportSessionStore,
	refs referenceProvider,
	store fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
	csv csvRenderer,
	pdf pdfRenderer,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		schedules: schedules,
		sessions:  sessions,
		refs:      refs,
		storage:   store,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate renders the schedule timetable, stores the file and returns a
// signed download link.
func (s *ExportService) Generate(ctx context.Context, scheduleID string, format ExportFormat) (*ExportResult, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}

	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	sessions, err := s.sessions.ListBySchedule(ctx, nil, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule sessions")
	}
	if s.cfg.MaxRows > 0 && len(sessions) > s.cfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("schedule has %d sessions, export is limited to %d", len(sessions), s.cfg.MaxRows))
	}
	refs, err := s.refs.Context(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference data")
	}

	grouped := timetableDataset(sessions, refs)
	title := fmt.Sprintf("%s (%s)", schedule.Name, schedule.AcademicPeriod)

	var payload []byte
	switch format {
	case ExportCSV:
		payload, err = s.csv.Render(grouped.Flatten("Day"))
	case ExportPDF:
		payload, err = s.pdf.RenderGrouped(grouped, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(schedule, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}

	token, expiresAt, err := s.signer.Generate(schedule.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("timetable export generated",
		zap.String("schedule_id", schedule.ID),
		zap.String("format", string(format)),
		zap.String("file", relPath))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
	ScheduleID  string
	ExpiresAt   time.Time
}

// ResolveDownload validates a signed token and opens the stored file. The
// caller owns the returned file handle.
func (s *ExportService) ResolveDownload(token string) (*ExportDownload, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}
	scheduleID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentTypeFor(relPath),
		SizeBytes:   info.Size(),
		ScheduleID:  scheduleID,
		ExpiresAt:   expiresAt,
	}, nil
}

func contentTypeFor(relPath string) string {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (scheduleID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(schedule *models.Schedule, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	name := sanitizeFilename(strings.ToLower(schedule.Name))
	period := sanitizeFilename(strings.ToLower(schedule.AcademicPeriod))
	return fmt.Sprintf("timetable_%s_%s_%s.%s", name, period, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

const exportTimeLayout = "15:04"

var exportHeaders = []string{"Time", "Course", "Lecturer", "Venue", "Groups", "Notes"}

// timetableDataset orders sessions by day then start time and groups them
// into one titled section per teaching day.
func timetableDataset(sessions []models.ScheduledSession, refs DetectionContext) export.GroupedDataset {
	ordered := make([]models.ScheduledSession, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DayOfWeek != ordered[j].DayOfWeek {
			return ordered[i].DayOfWeek.Index() < ordered[j].DayOfWeek.Index()
		}
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return venueName(refs, ordered[i].VenueID) < venueName(refs, ordered[j].VenueID)
	})

	grouped := export.GroupedDataset{Headers: exportHeaders}
	for _, session := range ordered {
		day := string(session.DayOfWeek)
		if n := len(grouped.Groups); n == 0 || grouped.Groups[n-1].Title != day {
			grouped.Groups = append(grouped.Groups, export.DatasetGroup{Title: day})
		}
		group := &grouped.Groups[len(grouped.Groups)-1]
		group.Rows = append(group.Rows, exportRow(session, refs))
	}
	return grouped
}

func exportRow(session models.ScheduledSession, refs DetectionContext) map[string]string {
	row := map[string]string{
		"Time":     session.StartTime.Format(exportTimeLayout) + " - " + session.EndTime.Format(exportTimeLayout),
		"Course":   courseLabel(refs, session.CourseID),
		"Lecturer": lecturerName(refs, session.LecturerID),
		"Venue":    venueName(refs, session.VenueID),
		"Groups":   strings.Join(groupNames(refs, session.StudentGroupIDs), ", "),
	}
	if session.Notes != nil {
		row["Notes"] = *session.Notes
	}
	return row
}

func venueName(refs DetectionContext, id string) string {
	if venue, ok := refs.Venue(id); ok {
		return venue.Name
	}
	return id
}

func lecturerName(refs DetectionContext, id string) string {
	if lecturer, ok := refs.Lecturer(id); ok {
		return lecturer.Name
	}
	return id
}

func courseLabel(refs DetectionContext, id string) string {
	course, ok := refs.Course(id)
	if !ok {
		return id
	}
	if course.Code == "" {
		return course.Name
	}
	return course.Code + " " + course.Name
}

func groupNames(refs DetectionContext, ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if group, ok := refs.StudentGroup(id); ok {
			names = append(names, group.Name)
			continue
		}
		names = append(names, id)
	}
	return names
}

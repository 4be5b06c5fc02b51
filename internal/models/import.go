package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ConflictStrategy governs how the import pipeline handles clashing rows.
type ConflictStrategy string

const (
	StrategyStrict       ConflictStrategy = "strict"
	StrategyAutomatic    ConflictStrategy = "automatic"
	StrategySkip         ConflictStrategy = "skip"
	StrategyManualReview ConflictStrategy = "manual_review"
)

// Valid reports whether s is a known strategy token.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyStrict, StrategyAutomatic, StrategySkip, StrategyManualReview:
		return true
	}
	return false
}

// SessionCandidate is one partial session row handed over by an upstream
// ingestion stage. Fields are raw and validated by the import pipeline.
type SessionCandidate struct {
	CourseID        string    `json:"course_id"`
	LecturerID      string    `json:"lecturer_id"`
	VenueID         string    `json:"venue_id"`
	StudentGroupIDs []string  `json:"student_group_ids"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DayOfWeek       string    `json:"day_of_week"`
	WeekNumber      *int      `json:"week_number,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
}

// ImportOptions ride an import job unmodified from enqueue to execution.
type ImportOptions struct {
	ScheduleID         string           `json:"schedule_id"`
	Strategy           ConflictStrategy `json:"strategy"`
	AllowPartialImport bool             `json:"allow_partial_import"`
	ValidateOnly       bool             `json:"validate_only"`
	BatchSize          int              `json:"batch_size"`
}

// ImportRowError describes why a single candidate row failed validation.
type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ResolutionAttempt records how one clash on one row was handled, for audit.
// Action is "skipped", "flagged", "unresolved", or the resolution type that
// was applied.
type ResolutionAttempt struct {
	Row       int       `json:"row"`
	ClashID   string    `json:"clash_id,omitempty"`
	ClashType ClashType `json:"clash_type"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// ImportResult enumerates the outcome of one import run. It is returned even
// on partial failure; when the outer transaction rolls back, Created is zero
// and CreatedSessionIDs is empty.
type ImportResult struct {
	ScheduleID         string              `json:"schedule_id"`
	TotalRows          int                 `json:"total_rows"`
	Created            int                 `json:"created"`
	Updated            int                 `json:"updated"`
	Failed             int                 `json:"failed"`
	Skipped            int                 `json:"skipped"`
	Flagged            int                 `json:"flagged"`
	CreatedSessionIDs  []string            `json:"created_session_ids"`
	Conflicts          []Clash             `json:"conflicts"`
	RowErrors          []ImportRowError    `json:"row_errors"`
	ResolutionAttempts []ResolutionAttempt `json:"resolution_attempts"`
	ValidateOnly       bool                `json:"validate_only"`
}

// ImportJobStatus captures background import lifecycle states.
type ImportJobStatus string

const (
	ImportStatusQueued     ImportJobStatus = "QUEUED"
	ImportStatusProcessing ImportJobStatus = "PROCESSING"
	ImportStatusFinished   ImportJobStatus = "FINISHED"
	ImportStatusFailed     ImportJobStatus = "FAILED"
)

// ImportJob is the polled state of an asynchronous import run.
type ImportJob struct {
	ID           string          `json:"id"`
	ScheduleID   string          `json:"schedule_id"`
	Options      ImportOptions   `json:"options"`
	Status       ImportJobStatus `json:"status"`
	TotalRows    int             `json:"total_rows"`
	Result       *ImportResult   `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// ReviewDecision captures the human outcome for a flagged import row.
type ReviewDecision string

const (
	ReviewPending  ReviewDecision = "pending"
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

// Valid reports whether d is a known review decision.
func (d ReviewDecision) Valid() bool {
	switch d {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// ReviewEntry is one flagged candidate clash awaiting a decision.
type ReviewEntry struct {
	Row       int              `json:"row"`
	ClashType ClashType        `json:"clash_type"`
	Candidate SessionCandidate `json:"candidate"`
	Clash     Clash            `json:"clash"`
	Decision  ReviewDecision   `json:"decision"`
}

// ReviewKey identifies a review entry by its (row, clash type) pair.
type ReviewKey struct {
	Row       int
	ClashType ClashType
}

// ReviewState is the ordered list of flagged entries for one import run.
// The list form is what gets persisted; Index and FromReviewIndex convert
// to and from the in-memory lookup map without relying on map iteration
// order.
type ReviewState []ReviewEntry

// Index builds a lookup map keyed by (row, clash type). Later entries for
// the same key win.
func (st ReviewState) Index() map[ReviewKey]ReviewEntry {
	idx := make(map[ReviewKey]ReviewEntry, len(st))
	for _, entry := range st {
		idx[ReviewKey{Row: entry.Row, ClashType: entry.ClashType}] = entry
	}
	return idx
}

// FromReviewIndex rebuilds the ordered list from a lookup map, sorted by row
// then clash type.
func FromReviewIndex(idx map[ReviewKey]ReviewEntry) ReviewState {
	keys := make([]ReviewKey, 0, len(idx))
	for key := range idx {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Row != keys[j].Row {
			return keys[i].Row < keys[j].Row
		}
		return keys[i].ClashType < keys[j].ClashType
	})
	st := make(ReviewState, 0, len(keys))
	for _, key := range keys {
		st = append(st, idx[key])
	}
	return st
}

// Value marshals the review state to JSON for persistence.
func (st ReviewState) Value() (driver.Value, error) {
	if st == nil {
		st = ReviewState{}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal review state: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the review state.
func (st *ReviewState) Scan(value interface{}) error {
	if value == nil {
		*st = ReviewState{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReviewState", value)
	}
	if len(data) == 0 {
		*st = ReviewState{}
		return nil
	}
	if err := json.Unmarshal(data, st); err != nil {
		return fmt.Errorf("unmarshal review state: %w", err)
	}
	return nil
}

// ImportReview persists the flagged rows of one import run so a reviewer can
// decide them later.
type ImportReview struct {
	ID         string      `db:"id" json:"id"`
	ScheduleID string      `db:"schedule_id" json:"schedule_id"`
	JobID      *string     `db:"job_id" json:"job_id,omitempty"`
	State      ReviewState `db:"state" json:"state"`
	CreatedBy  string      `db:"created_by" json:"created_by"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

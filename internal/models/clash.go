package models

// ClashType enumerates the categories of scheduling conflict.
type ClashType string

const (
	ClashVenueDoubleBooking    ClashType = "venue_double_booking"
	ClashLecturerConflict      ClashType = "lecturer_conflict"
	ClashStudentGroupOverlap   ClashType = "student_group_overlap"
	ClashEquipmentConflict     ClashType = "equipment_conflict"
	ClashCapacityExceeded      ClashType = "capacity_exceeded"
	ClashAvailabilityViolation ClashType = "availability_violation"
	ClashPreferenceViolation   ClashType = "preference_violation"
)

// ClashSeverity ranks how serious a clash is.
type ClashSeverity string

const (
	SeverityInfo     ClashSeverity = "info"
	SeverityWarning  ClashSeverity = "warning"
	SeverityError    ClashSeverity = "error"
	SeverityCritical ClashSeverity = "critical"
)

// Blocking reports whether the severity forbids publishing.
func (s ClashSeverity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ResolutionType enumerates the remedies a resolution can suggest.
type ResolutionType string

const (
	ResolutionReschedule       ResolutionType = "reschedule"
	ResolutionReassignVenue    ResolutionType = "reassign_venue"
	ResolutionReassignLecturer ResolutionType = "reassign_lecturer"
	ResolutionSplitGroup       ResolutionType = "split_group"
	ResolutionModifyDuration   ResolutionType = "modify_duration"
)

// EffortLevel estimates how invasive applying a resolution would be.
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// Resolution is a ranked, non-executed suggestion for remedying a clash.
type Resolution struct {
	ID          string            `json:"id"`
	Type        ResolutionType    `json:"type"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Impact      string            `json:"impact"`
	Score       float64           `json:"score"`
	Effort      EffortLevel       `json:"effort"`
}

// Clash is a detected violation of a scheduling constraint.
type Clash struct {
	ID          string        `json:"id"`
	Type        ClashType     `json:"type"`
	Severity    ClashSeverity `json:"severity"`
	ScheduleID  string        `json:"schedule_id"`
	SessionIDs  []string      `json:"session_ids"`
	EntityIDs   []string      `json:"entity_ids"`
	Description string        `json:"description"`
	Resolutions []Resolution  `json:"resolutions,omitempty"`
	Resolved    bool          `json:"resolved"`
}

// DetectionSummary aggregates a detection run.
type DetectionSummary struct {
	TotalClashes    int               `json:"total_clashes"`
	ByType          map[ClashType]int `json:"by_type"`
	CriticalClashes int               `json:"critical_clashes"`
	WarningClashes  int               `json:"warning_clashes"`
}

// DetectionReport is the outcome of a full-schedule detection run.
// IsValid holds iff no clash carries a blocking severity.
type DetectionReport struct {
	Clashes []Clash          `json:"clashes"`
	IsValid bool             `json:"is_valid"`
	Summary DetectionSummary `json:"summary"`
}

// ClashError is returned when detected clashes block a mutation.
type ClashError struct {
	Message string  `json:"message"`
	Clashes []Clash `json:"clashes"`
}

// Error implements the error interface for clash errors.
func (e *ClashError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

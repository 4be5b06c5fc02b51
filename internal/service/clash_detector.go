package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// DetectionContext carries the reference data detection passes read.
// Slice order is preserved: the greedy repair policy walks venues and
// lecturers in the order they were supplied.
type DetectionContext struct {
	Venues        []models.Venue
	Lecturers     []models.Lecturer
	Courses       []models.Course
	StudentGroups []models.StudentGroup

	venuesByID    map[string]models.Venue
	lecturersByID map[string]models.Lecturer
	coursesByID   map[string]models.Course
	groupsByID    map[string]models.StudentGroup
}

// NewDetectionContext indexes reference data for constant-time lookup.
func NewDetectionContext(venues []models.Venue, lecturers []models.Lecturer, courses []models.Course, groups []models.StudentGroup) DetectionContext {
	ctx := DetectionContext{
		Venues:        venues,
		Lecturers:     lecturers,
		Courses:       courses,
		StudentGroups: groups,

		venuesByID:    make(map[string]models.Venue, len(venues)),
		lecturersByID: make(map[string]models.Lecturer, len(lecturers)),
		coursesByID:   make(map[string]models.Course, len(courses)),
		groupsByID:    make(map[string]models.StudentGroup, len(groups)),
	}
	for _, v := range venues {
		ctx.venuesByID[v.ID] = v
	}
	for _, l := range lecturers {
		ctx.lecturersByID[l.ID] = l
	}
	for _, c := range courses {
		ctx.coursesByID[c.ID] = c
	}
	for _, g := range groups {
		ctx.groupsByID[g.ID] = g
	}
	return ctx
}

// Venue looks up a venue by id.
func (c DetectionContext) Venue(id string) (models.Venue, bool) {
	v, ok := c.venuesByID[id]
	return v, ok
}

// Lecturer looks up a lecturer by id.
func (c DetectionContext) Lecturer(id string) (models.Lecturer, bool) {
	l, ok := c.lecturersByID[id]
	return l, ok
}

// Course looks up a course by id.
func (c DetectionContext) Course(id string) (models.Course, bool) {
	course, ok := c.coursesByID[id]
	return course, ok
}

// StudentGroup looks up a student group by id.
func (c DetectionContext) StudentGroup(id string) (models.StudentGroup, bool) {
	g, ok := c.groupsByID[id]
	return g, ok
}

// GroupSizeTotal sums the sizes of the given groups. Unknown ids count zero.
func (c DetectionContext) GroupSizeTotal(ids []string) int {
	total := 0
	for _, id := range ids {
		if g, ok := c.groupsByID[id]; ok {
			total += g.Size
		}
	}
	return total
}

// ClashDetector finds scheduling conflicts in a set of sessions. All
// computation is pure and side-effect free; results are deterministic for
// identical inputs.
type ClashDetector struct{}

// NewClashDetector builds a detector.
func NewClashDetector() *ClashDetector {
	return &ClashDetector{}
}

// Detect runs every detection pass over the sessions and aggregates the
// result. The report is valid iff no clash carries a blocking severity.
func (d *ClashDetector) Detect(sessions []models.ScheduledSession, refs DetectionContext) *models.DetectionReport {
	ordered := sortSessions(sessions)

	var clashes []models.Clash
	clashes = append(clashes, d.venueDoubleBookings(ordered)...)
	clashes = append(clashes, d.lecturerConflicts(ordered)...)
	clashes = append(clashes, d.availabilityViolations(ordered, refs)...)
	clashes = append(clashes, d.studentGroupOverlaps(ordered)...)
	clashes = append(clashes, d.equipmentConflicts(ordered, refs)...)
	clashes = append(clashes, d.capacityChecks(ordered, refs)...)
	clashes = append(clashes, d.preferenceViolations(ordered, refs)...)

	for i := range clashes {
		clashes[i].Resolutions = suggestResolutions(clashes[i])
	}

	report := &models.DetectionReport{
		Clashes: clashes,
		Summary: buildSummary(clashes),
	}
	report.IsValid = report.Summary.CriticalClashes == 0
	return report
}

// DetectForCandidate runs only the overlap passes (venue, lecturer, student
// group) for one candidate against an existing-session list. Equipment,
// capacity, availability and preference checks need full reference data and
// run only in Detect.
func (d *ClashDetector) DetectForCandidate(candidate models.ScheduledSession, existing []models.ScheduledSession) []models.Clash {
	var clashes []models.Clash
	for _, other := range sortSessions(existing) {
		if other.ID == candidate.ID {
			continue
		}
		if !candidate.Overlaps(other) {
			continue
		}
		pair := []string{candidate.ID, other.ID}
		if candidate.VenueID != "" && candidate.VenueID == other.VenueID {
			clashes = append(clashes, newClash(
				models.ClashVenueDoubleBooking, models.SeverityError, candidate.ScheduleID,
				pair, []string{candidate.VenueID},
				fmt.Sprintf("venue %s is double-booked on %s: %s overlaps %s",
					candidate.VenueID, candidate.DayOfWeek, sessionWindow(candidate), sessionWindow(other)),
			))
		}
		if candidate.LecturerID != "" && candidate.LecturerID == other.LecturerID {
			clashes = append(clashes, newClash(
				models.ClashLecturerConflict, models.SeverityError, candidate.ScheduleID,
				pair, []string{candidate.LecturerID},
				fmt.Sprintf("lecturer %s is double-booked on %s: %s overlaps %s",
					candidate.LecturerID, candidate.DayOfWeek, sessionWindow(candidate), sessionWindow(other)),
			))
		}
		for _, groupID := range candidate.StudentGroupIDs {
			if other.HasStudentGroup(groupID) {
				clashes = append(clashes, newClash(
					models.ClashStudentGroupOverlap, models.SeverityError, candidate.ScheduleID,
					pair, []string{groupID},
					fmt.Sprintf("student group %s has overlapping sessions on %s: %s overlaps %s",
						groupID, candidate.DayOfWeek, sessionWindow(candidate), sessionWindow(other)),
				))
			}
		}
	}
	for i := range clashes {
		clashes[i].Resolutions = suggestResolutions(clashes[i])
	}
	return clashes
}

func (d *ClashDetector) venueDoubleBookings(sessions []models.ScheduledSession) []models.Clash {
	partitions := partitionSessions(sessions, func(s models.ScheduledSession) []string {
		if s.VenueID == "" {
			return nil
		}
		return []string{s.VenueID}
	})

	var clashes []models.Clash
	for _, venueID := range sortedKeys(partitions) {
		group := partitions[venueID]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !group[i].Overlaps(group[j]) {
					continue
				}
				clashes = append(clashes, newClash(
					models.ClashVenueDoubleBooking, models.SeverityError, group[i].ScheduleID,
					[]string{group[i].ID, group[j].ID}, []string{venueID},
					fmt.Sprintf("venue %s is double-booked on %s: %s overlaps %s",
						venueID, group[i].DayOfWeek, sessionWindow(group[i]), sessionWindow(group[j])),
				))
			}
		}
	}
	return clashes
}

func (d *ClashDetector) lecturerConflicts(sessions []models.ScheduledSession) []models.Clash {
	partitions := partitionSessions(sessions, func(s models.ScheduledSession) []string {
		if s.LecturerID == "" {
			return nil
		}
		return []string{s.LecturerID}
	})

	var clashes []models.Clash
	for _, lecturerID := range sortedKeys(partitions) {
		group := partitions[lecturerID]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !group[i].Overlaps(group[j]) {
					continue
				}
				clashes = append(clashes, newClash(
					models.ClashLecturerConflict, models.SeverityError, group[i].ScheduleID,
					[]string{group[i].ID, group[j].ID}, []string{lecturerID},
					fmt.Sprintf("lecturer %s is double-booked on %s: %s overlaps %s",
						lecturerID, group[i].DayOfWeek, sessionWindow(group[i]), sessionWindow(group[j])),
				))
			}
		}
	}
	return clashes
}

// availabilityViolations flags sessions outside the lecturer's declared
// windows. A lecturer with no availability data at all is treated as
// unconstrained; once any day is declared, undeclared days are unavailable.
func (d *ClashDetector) availabilityViolations(sessions []models.ScheduledSession, refs DetectionContext) []models.Clash {
	var clashes []models.Clash
	for _, s := range sessions {
		lecturer, ok := refs.Lecturer(s.LecturerID)
		if !ok || len(lecturer.Availability) == 0 {
			continue
		}
		if lecturer.Availability.Covers(s.DayOfWeek, s.StartMinutes(), s.EndMinutes()) {
			continue
		}
		clashes = append(clashes, newClash(
			models.ClashAvailabilityViolation, models.SeverityError, s.ScheduleID,
			[]string{s.ID}, []string{lecturer.ID},
			fmt.Sprintf("session on %s %s is outside the availability of lecturer %s",
				s.DayOfWeek, sessionWindow(s), lecturer.Name),
		))
	}
	return clashes
}

func (d *ClashDetector) studentGroupOverlaps(sessions []models.ScheduledSession) []models.Clash {
	partitions := partitionSessions(sessions, func(s models.ScheduledSession) []string {
		return s.StudentGroupIDs
	})

	var clashes []models.Clash
	for _, groupID := range sortedKeys(partitions) {
		group := partitions[groupID]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if !group[i].Overlaps(group[j]) {
					continue
				}
				clashes = append(clashes, newClash(
					models.ClashStudentGroupOverlap, models.SeverityError, group[i].ScheduleID,
					[]string{group[i].ID, group[j].ID}, []string{groupID},
					fmt.Sprintf("student group %s has overlapping sessions on %s: %s overlaps %s",
						groupID, group[i].DayOfWeek, sessionWindow(group[i]), sessionWindow(group[j])),
				))
			}
		}
	}
	return clashes
}

func (d *ClashDetector) equipmentConflicts(sessions []models.ScheduledSession, refs DetectionContext) []models.Clash {
	var clashes []models.Clash
	for _, s := range sessions {
		course, ok := refs.Course(s.CourseID)
		if !ok || len(course.RequiredEquipment) == 0 {
			continue
		}
		venue, ok := refs.Venue(s.VenueID)
		if !ok {
			continue
		}
		missing := venue.MissingEquipment(course.RequiredEquipment)
		if len(missing) == 0 {
			continue
		}
		clashes = append(clashes, newClash(
			models.ClashEquipmentConflict, models.SeverityWarning, s.ScheduleID,
			[]string{s.ID}, []string{venue.ID, course.ID},
			fmt.Sprintf("venue %s is missing equipment required by course %s: %s",
				venue.Name, course.Code, strings.Join(missing, ", ")),
		))
	}
	return clashes
}

func (d *ClashDetector) capacityChecks(sessions []models.ScheduledSession, refs DetectionContext) []models.Clash {
	var clashes []models.Clash
	for _, s := range sessions {
		venue, ok := refs.Venue(s.VenueID)
		if !ok || len(s.StudentGroupIDs) == 0 {
			continue
		}
		total := refs.GroupSizeTotal(s.StudentGroupIDs)
		if total <= venue.Capacity {
			continue
		}
		entityIDs := append([]string{venue.ID}, s.StudentGroupIDs...)
		clashes = append(clashes, newClash(
			models.ClashCapacityExceeded, models.SeverityError, s.ScheduleID,
			[]string{s.ID}, entityIDs,
			fmt.Sprintf("combined group size %d exceeds the capacity %d of venue %s by %d",
				total, venue.Capacity, venue.Name, total-venue.Capacity),
		))
	}
	return clashes
}

// preferenceViolations checks lecturer workload rules. These never block a
// publish: load caps are warnings, break and adjacency rules are info.
func (d *ClashDetector) preferenceViolations(sessions []models.ScheduledSession, refs DetectionContext) []models.Clash {
	partitions := partitionSessions(sessions, func(s models.ScheduledSession) []string {
		if s.LecturerID == "" {
			return nil
		}
		return []string{s.LecturerID}
	})

	var clashes []models.Clash
	for _, lecturerID := range sortedKeys(partitions) {
		lecturer, ok := refs.Lecturer(lecturerID)
		if !ok {
			continue
		}
		prefs := lecturer.Preferences
		own := partitions[lecturerID]

		if prefs.MaxHoursPerDay > 0 {
			perDay := make(map[models.DayOfWeek]int)
			perDaySessions := make(map[models.DayOfWeek][]string)
			for _, s := range own {
				perDay[s.DayOfWeek] += s.DurationMinutes()
				perDaySessions[s.DayOfWeek] = append(perDaySessions[s.DayOfWeek], s.ID)
			}
			for _, day := range sortedDays(perDay) {
				if perDay[day] <= prefs.MaxHoursPerDay*60 {
					continue
				}
				clashes = append(clashes, newClash(
					models.ClashPreferenceViolation, models.SeverityWarning, own[0].ScheduleID,
					perDaySessions[day], []string{lecturerID},
					fmt.Sprintf("lecturer %s is scheduled %d minutes on %s, above the daily cap of %d hours",
						lecturer.Name, perDay[day], day, prefs.MaxHoursPerDay),
				))
			}
		}

		if prefs.MaxHoursPerWeek > 0 {
			total := 0
			ids := make([]string, 0, len(own))
			for _, s := range own {
				total += s.DurationMinutes()
				ids = append(ids, s.ID)
			}
			if total > prefs.MaxHoursPerWeek*60 {
				clashes = append(clashes, newClash(
					models.ClashPreferenceViolation, models.SeverityWarning, own[0].ScheduleID,
					ids, []string{lecturerID},
					fmt.Sprintf("lecturer %s is scheduled %d minutes per week, above the weekly cap of %d hours",
						lecturer.Name, total, prefs.MaxHoursPerWeek),
				))
			}
		}

		if prefs.MinBreakMinutes > 0 || prefs.AvoidBackToBack {
			for i := 0; i < len(own)-1; i++ {
				cur, next := own[i], own[i+1]
				if cur.DayOfWeek != next.DayOfWeek || !weeksCompatible(cur, next) {
					continue
				}
				gap := next.StartMinutes() - cur.EndMinutes()
				if gap < 0 {
					continue
				}
				switch {
				case gap == 0 && prefs.AvoidBackToBack:
					clashes = append(clashes, newClash(
						models.ClashPreferenceViolation, models.SeverityInfo, cur.ScheduleID,
						[]string{cur.ID, next.ID}, []string{lecturerID},
						fmt.Sprintf("lecturer %s has back-to-back sessions on %s at %s",
							lecturer.Name, cur.DayOfWeek, next.StartTime.Format("15:04")),
					))
				case prefs.MinBreakMinutes > 0 && gap < prefs.MinBreakMinutes:
					clashes = append(clashes, newClash(
						models.ClashPreferenceViolation, models.SeverityInfo, cur.ScheduleID,
						[]string{cur.ID, next.ID}, []string{lecturerID},
						fmt.Sprintf("lecturer %s has a %d minute break on %s, below the %d minute minimum",
							lecturer.Name, gap, cur.DayOfWeek, prefs.MinBreakMinutes),
					))
				}
			}
		}
	}
	return clashes
}

func buildSummary(clashes []models.Clash) models.DetectionSummary {
	summary := models.DetectionSummary{
		TotalClashes: len(clashes),
		ByType:       make(map[models.ClashType]int),
	}
	for _, c := range clashes {
		summary.ByType[c.Type]++
		if c.Severity.Blocking() {
			summary.CriticalClashes++
		} else {
			summary.WarningClashes++
		}
	}
	return summary
}

func newClash(t models.ClashType, severity models.ClashSeverity, scheduleID string, sessionIDs, entityIDs []string, description string) models.Clash {
	return models.Clash{
		ID:          uuid.NewString(),
		Type:        t,
		Severity:    severity,
		ScheduleID:  scheduleID,
		SessionIDs:  sessionIDs,
		EntityIDs:   entityIDs,
		Description: description,
	}
}

// sortSessions returns a copy ordered by day, start time, then id so that
// every pass iterates deterministically.
func sortSessions(sessions []models.ScheduledSession) []models.ScheduledSession {
	ordered := append([]models.ScheduledSession(nil), sessions...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].DayOfWeek != ordered[j].DayOfWeek {
			return ordered[i].DayOfWeek.Index() < ordered[j].DayOfWeek.Index()
		}
		if ordered[i].StartMinutes() != ordered[j].StartMinutes() {
			return ordered[i].StartMinutes() < ordered[j].StartMinutes()
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

func partitionSessions(sessions []models.ScheduledSession, keys func(models.ScheduledSession) []string) map[string][]models.ScheduledSession {
	partitions := make(map[string][]models.ScheduledSession)
	for _, s := range sessions {
		for _, key := range keys(s) {
			partitions[key] = append(partitions[key], s)
		}
	}
	return partitions
}

func sortedKeys(partitions map[string][]models.ScheduledSession) []string {
	keys := make([]string, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedDays(perDay map[models.DayOfWeek]int) []models.DayOfWeek {
	days := make([]models.DayOfWeek, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Index() < days[j].Index() })
	return days
}

func weeksCompatible(a, b models.ScheduledSession) bool {
	if a.WeekNumber == nil || b.WeekNumber == nil {
		return true
	}
	return *a.WeekNumber == *b.WeekNumber
}

func sessionWindow(s models.ScheduledSession) string {
	return fmt.Sprintf("%s-%s", s.StartTime.Format("15:04"), s.EndTime.Format("15:04"))
}

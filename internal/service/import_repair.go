package service

import (
	"fmt"
	"strings"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// RepairOutcome reports what a repair policy did to one candidate. Session
// carries the merged candidate when Repaired is true and the untouched input
// otherwise.
type RepairOutcome struct {
	Session  models.ScheduledSession
	Repaired bool
	Attempts []models.ResolutionAttempt
}

// RepairPolicy attempts to rework a clashing candidate so it can be imported.
// Implementations are pure: they never persist anything.
type RepairPolicy interface {
	Repair(candidate models.ScheduledSession, clashes []models.Clash, existing []models.ScheduledSession, refs DetectionContext) RepairOutcome
}

// GreedyFirstFit repairs clashes by first match over the reference data in
// the order it was supplied; it does not search for an optimal assignment.
// Replacements must be free for the candidate's window, and the merged
// candidate is re-checked against the existing sessions before it is
// accepted.
type GreedyFirstFit struct {
	detector *ClashDetector
}

// NewGreedyFirstFit builds the default repair policy.
func NewGreedyFirstFit(detector *ClashDetector) *GreedyFirstFit {
	if detector == nil {
		detector = NewClashDetector()
	}
	return &GreedyFirstFit{detector: detector}
}

// Repair walks the clashes in order, mutating a working copy of the
// candidate. Every clash yields one resolution attempt; the outcome is
// repaired only when every attempt succeeded and the merged candidate is
// clash-free.
func (p *GreedyFirstFit) Repair(candidate models.ScheduledSession, clashes []models.Clash, existing []models.ScheduledSession, refs DetectionContext) RepairOutcome {
	merged := candidate
	attempts := make([]models.ResolutionAttempt, 0, len(clashes))
	repaired := true
	for _, clash := range clashes {
		attempt := p.repairOne(&merged, clash, existing, refs)
		attempts = append(attempts, attempt)
		if !attempt.Success {
			repaired = false
		}
	}
	if !repaired {
		return RepairOutcome{Session: candidate, Attempts: attempts}
	}

	for _, residual := range p.detector.DetectForCandidate(merged, existing) {
		attempts = append(attempts, models.ResolutionAttempt{
			ClashID:   residual.ID,
			ClashType: residual.Type,
			Action:    "unresolved",
			Detail:    residual.Description,
		})
		repaired = false
	}
	if !repaired {
		return RepairOutcome{Session: candidate, Attempts: attempts}
	}
	return RepairOutcome{Session: merged, Repaired: true, Attempts: attempts}
}

func (p *GreedyFirstFit) repairOne(merged *models.ScheduledSession, clash models.Clash, existing []models.ScheduledSession, refs DetectionContext) models.ResolutionAttempt {
	attempt := models.ResolutionAttempt{ClashID: clash.ID, ClashType: clash.Type}

	switch clash.Type {
	case models.ClashVenueDoubleBooking:
		attempt.Action = string(models.ResolutionReassignVenue)
		if venueFree(merged.VenueID, *merged, existing) {
			attempt.Success = true
			attempt.Detail = "resolved by an earlier repair"
			return attempt
		}
		venue, ok := p.pickVenue(*merged, existing, refs, refs.GroupSizeTotal(merged.StudentGroupIDs), requiredEquipment(*merged, refs), merged.VenueID)
		if !ok {
			attempt.Detail = "no free venue satisfies capacity and equipment"
			return attempt
		}
		merged.VenueID = venue.ID
		attempt.Success = true
		attempt.Detail = fmt.Sprintf("moved to venue %s", venue.Name)

	case models.ClashLecturerConflict:
		attempt.Action = string(models.ResolutionReassignLecturer)
		if lecturerFree(merged.LecturerID, *merged, existing) {
			attempt.Success = true
			attempt.Detail = "resolved by an earlier repair"
			return attempt
		}
		course, ok := refs.Course(merged.CourseID)
		if !ok {
			attempt.Detail = "course missing from reference context"
			return attempt
		}
		for _, lecturer := range refs.Lecturers {
			if lecturer.ID == merged.LecturerID {
				continue
			}
			if !lecturerTeaches(lecturer, course) {
				continue
			}
			if !availabilityAllows(lecturer, *merged) {
				continue
			}
			if !lecturerFree(lecturer.ID, *merged, existing) {
				continue
			}
			merged.LecturerID = lecturer.ID
			attempt.Success = true
			attempt.Detail = fmt.Sprintf("reassigned to lecturer %s", lecturer.Name)
			return attempt
		}
		attempt.Detail = "no alternative lecturer matches the course and window"

	case models.ClashCapacityExceeded:
		attempt.Action = string(models.ResolutionReassignVenue)
		venue, ok := p.pickVenue(*merged, existing, refs, refs.GroupSizeTotal(merged.StudentGroupIDs), requiredEquipment(*merged, refs), "")
		if !ok {
			attempt.Detail = "no free venue fits the combined group size"
			return attempt
		}
		merged.VenueID = venue.ID
		attempt.Success = true
		attempt.Detail = fmt.Sprintf("moved to venue %s", venue.Name)

	case models.ClashEquipmentConflict:
		attempt.Action = string(models.ResolutionReassignVenue)
		venue, ok := p.pickVenue(*merged, existing, refs, refs.GroupSizeTotal(merged.StudentGroupIDs), requiredEquipment(*merged, refs), "")
		if !ok {
			attempt.Detail = "no free venue offers the required equipment"
			return attempt
		}
		merged.VenueID = venue.ID
		attempt.Success = true
		attempt.Detail = fmt.Sprintf("moved to venue %s", venue.Name)

	default:
		attempt.Action = "unresolved"
		attempt.Detail = fmt.Sprintf("%s clashes are not automatically repairable", clash.Type)
	}
	return attempt
}

// pickVenue returns the first venue, in supplied order, that seats the
// groups, offers the equipment and is free for the candidate's window.
func (p *GreedyFirstFit) pickVenue(candidate models.ScheduledSession, existing []models.ScheduledSession, refs DetectionContext, seats int, equipment []string, excludeID string) (models.Venue, bool) {
	for _, venue := range refs.Venues {
		if venue.ID == excludeID {
			continue
		}
		if venue.Capacity < seats || !venue.HasEquipment(equipment) {
			continue
		}
		if !venueFree(venue.ID, candidate, existing) {
			continue
		}
		return venue, true
	}
	return models.Venue{}, false
}

func requiredEquipment(candidate models.ScheduledSession, refs DetectionContext) []string {
	course, ok := refs.Course(candidate.CourseID)
	if !ok {
		return nil
	}
	return course.RequiredEquipment
}

func venueFree(venueID string, candidate models.ScheduledSession, existing []models.ScheduledSession) bool {
	probe := candidate
	probe.VenueID = venueID
	for _, other := range existing {
		if other.ID == candidate.ID || other.VenueID != venueID {
			continue
		}
		if probe.Overlaps(other) {
			return false
		}
	}
	return true
}

func lecturerFree(lecturerID string, candidate models.ScheduledSession, existing []models.ScheduledSession) bool {
	probe := candidate
	probe.LecturerID = lecturerID
	for _, other := range existing {
		if other.ID == candidate.ID || other.LecturerID != lecturerID {
			continue
		}
		if probe.Overlaps(other) {
			return false
		}
	}
	return true
}

// lecturerTeaches reports whether the lecturer covers the course: same
// department, or one of the lecturer's subject tags appears in the course
// name.
func lecturerTeaches(lecturer models.Lecturer, course models.Course) bool {
	if lecturer.Department != "" && lecturer.Department == course.Department {
		return true
	}
	name := strings.ToLower(course.Name)
	for _, subject := range lecturer.Subjects {
		if subject == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(subject)) {
			return true
		}
	}
	return false
}

// availabilityAllows mirrors the detector's availability pass: a lecturer
// with no declared windows is unconstrained.
func availabilityAllows(lecturer models.Lecturer, candidate models.ScheduledSession) bool {
	if len(lecturer.Availability) == 0 {
		return true
	}
	return lecturer.Availability.Covers(candidate.DayOfWeek, candidate.StartMinutes(), candidate.EndMinutes())
}

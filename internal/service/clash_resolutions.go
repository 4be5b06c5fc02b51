package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jak0d/timetiba-sub002/internal/models"
)

// suggestResolutions returns one or two ranked remedies for a clash. The
// table is fixed per clash type: suggestions are advisory metadata, no
// search is performed and nothing is executed.
func suggestResolutions(clash models.Clash) []models.Resolution {
	params := map[string]string{"clash_id": clash.ID}
	for i, id := range clash.SessionIDs {
		params[fmt.Sprintf("session_id_%d", i+1)] = id
	}

	switch clash.Type {
	case models.ClashVenueDoubleBooking:
		return []models.Resolution{
			newResolution(models.ResolutionReassignVenue, 0.9, models.EffortLow, params,
				"Move one of the overlapping sessions to an alternative venue",
				"One session changes venue; times stay unchanged"),
			newResolution(models.ResolutionReschedule, 0.8, models.EffortMedium, params,
				"Move one of the overlapping sessions to a free time slot",
				"One session changes its day or time"),
		}
	case models.ClashLecturerConflict:
		return []models.Resolution{
			newResolution(models.ResolutionReschedule, 0.8, models.EffortMedium, params,
				"Move one of the overlapping sessions to a free time slot",
				"One session changes its day or time"),
			newResolution(models.ResolutionReassignLecturer, 0.75, models.EffortMedium, params,
				"Assign a different qualified lecturer to one session",
				"One session changes lecturer; students are unaffected"),
		}
	case models.ClashAvailabilityViolation:
		return []models.Resolution{
			newResolution(models.ResolutionReschedule, 0.8, models.EffortMedium, params,
				"Move the session inside the lecturer's availability window",
				"The session changes its day or time"),
			newResolution(models.ResolutionReassignLecturer, 0.7, models.EffortMedium, params,
				"Assign a lecturer who is available at this time",
				"The session changes lecturer; students are unaffected"),
		}
	case models.ClashStudentGroupOverlap:
		return []models.Resolution{
			newResolution(models.ResolutionReschedule, 0.8, models.EffortMedium, params,
				"Move one of the overlapping sessions to a free time slot",
				"One session changes its day or time"),
			newResolution(models.ResolutionSplitGroup, 0.6, models.EffortHigh, params,
				"Split the student group across the overlapping sessions",
				"Group membership changes; both sessions keep their slots"),
		}
	case models.ClashEquipmentConflict:
		return []models.Resolution{
			newResolution(models.ResolutionReassignVenue, 0.7, models.EffortLow, params,
				"Move the session to a venue that has the required equipment",
				"The session changes venue; times stay unchanged"),
		}
	case models.ClashCapacityExceeded:
		return []models.Resolution{
			newResolution(models.ResolutionReassignVenue, 0.8, models.EffortMedium, params,
				"Move the session to a venue large enough for all groups",
				"The session changes venue; times stay unchanged"),
			newResolution(models.ResolutionSplitGroup, 0.5, models.EffortHigh, params,
				"Split the cohort into separate sessions",
				"A second session is created; both need venues and slots"),
		}
	case models.ClashPreferenceViolation:
		return []models.Resolution{
			newResolution(models.ResolutionReschedule, 0.8, models.EffortLow, params,
				"Move the session to relieve the lecturer's workload rule",
				"The session changes its day or time"),
			newResolution(models.ResolutionModifyDuration, 0.55, models.EffortMedium, params,
				"Shorten the session to fit the lecturer's workload rule",
				"Teaching time is reduced; course coverage may need review"),
		}
	default:
		return nil
	}
}

func newResolution(t models.ResolutionType, score float64, effort models.EffortLevel, params map[string]string, description, impact string) models.Resolution {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return models.Resolution{
		ID:          uuid.NewString(),
		Type:        t,
		Description: description,
		Parameters:  copied,
		Impact:      impact,
		Score:       score,
		Effort:      effort,
	}
}

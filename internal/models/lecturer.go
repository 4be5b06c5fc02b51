package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// TimeWindow is a time-of-day interval expressed as "HH:MM" clock strings.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Minutes returns the window bounds as minutes since midnight.
func (w TimeWindow) Minutes() (start, end int, err error) {
	start, err = ParseClock(w.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClock(w.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseClock converts an "HH:MM" string into minutes since midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("clock value %q out of range", raw)
	}
	return hours*60 + minutes, nil
}

// WeeklyAvailability maps a day of week to the ordered, disjoint windows a
// lecturer can teach in. Stored as JSONB.
type WeeklyAvailability map[DayOfWeek][]TimeWindow

// Value implements driver.Valuer.
func (a WeeklyAvailability) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *WeeklyAvailability) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into WeeklyAvailability", src)
	}
}

// Days returns the days with at least one window, in week order.
func (a WeeklyAvailability) Days() []DayOfWeek {
	days := make([]DayOfWeek, 0, len(a))
	for day := range a {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Index() < days[j].Index() })
	return days
}

// Covers reports whether some window on the given day fully contains the
// [start, end) minute-of-day interval. A day with no windows covers nothing.
func (a WeeklyAvailability) Covers(day DayOfWeek, startMin, endMin int) bool {
	for _, window := range a[day] {
		ws, we, err := window.Minutes()
		if err != nil {
			continue
		}
		if ws <= startMin && endMin <= we {
			return true
		}
	}
	return false
}

// LecturerPreferences captures soft workload rules for a lecturer.
type LecturerPreferences struct {
	MaxHoursPerDay  int  `json:"max_hours_per_day"`
	MaxHoursPerWeek int  `json:"max_hours_per_week"`
	MinBreakMinutes int  `json:"min_break_minutes"`
	AvoidBackToBack bool `json:"avoid_back_to_back"`
}

// Value implements driver.Valuer.
func (p LecturerPreferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *LecturerPreferences) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = LecturerPreferences{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into LecturerPreferences", src)
	}
}

// Lecturer represents teaching staff with availability and workload rules.
type Lecturer struct {
	ID           string              `db:"id" json:"id"`
	Name         string              `db:"name" json:"name"`
	Department   string              `db:"department" json:"department"`
	Subjects     pq.StringArray      `db:"subjects" json:"subjects"`
	Availability WeeklyAvailability  `db:"availability" json:"availability"`
	Preferences  LecturerPreferences `db:"preferences" json:"preferences"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// Venue represents a bookable teaching space.
type Venue struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Capacity  int            `db:"capacity" json:"capacity"`
	Equipment pq.StringArray `db:"equipment" json:"equipment"`
	Location  string         `db:"location" json:"location"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// HasEquipment reports whether the venue offers every requested tag.
func (v Venue) HasEquipment(required []string) bool {
	return len(v.MissingEquipment(required)) == 0
}

// MissingEquipment returns the requested tags the venue does not offer,
// preserving the order they were requested in.
func (v Venue) MissingEquipment(required []string) []string {
	available := make(map[string]bool, len(v.Equipment))
	for _, tag := range v.Equipment {
		available[tag] = true
	}
	var missing []string
	for _, tag := range required {
		if !available[tag] {
			missing = append(missing, tag)
		}
	}
	return missing
}

package dto

import "time"

// ExportLinkResponse returns a signed, expiring download link.
type ExportLinkResponse struct {
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}

package model

import "time"

// ReportThreshold is the report count at or above which an item is no longer
// handed out.
const ReportThreshold = 3

// Item represents one distributable entry of the shared pool
type Item struct {
	ID          string    `json:"id"`
	Payload     string    `json:"payload"`
	ReportCount int       `json:"report_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Eligible reports whether the item may still be selected
func (i *Item) Eligible() bool {
	return i.ReportCount < ReportThreshold
}

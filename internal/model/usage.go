package model

import "time"

// UsageRecord tracks how many items a requester received in a tenant since
// the last reset. A missing record is equivalent to ConsumedCount == 0.
type UsageRecord struct {
	TenantID      string    `json:"tenant_id"`
	RequesterID   string    `json:"requester_id"`
	ConsumedCount int       `json:"consumed_count"`
	LastResetAt   time.Time `json:"last_reset_at"`
}

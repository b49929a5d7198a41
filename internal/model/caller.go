package model

// Caller identifies who issued a command, as attested by the transport.
// PlatformAdmin carries authority granted outside this service (for example
// the chat platform's administrator permission).
type Caller struct {
	RequesterID   string   `json:"requester_id"`
	TenantID      string   `json:"tenant_id"`
	Roles         []string `json:"roles"`
	PlatformAdmin bool     `json:"platform_admin"`
}

// HasRole reports whether the caller holds the given role id
func (c Caller) HasRole(roleID string) bool {
	for _, r := range c.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

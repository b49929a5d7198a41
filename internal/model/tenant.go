package model

import "time"

// TenantAuthConfig represents the delegated admin configuration of a tenant
type TenantAuthConfig struct {
	TenantID    string    `json:"tenant_id"`
	AdminRoleID string    `json:"admin_role_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasAdminRole reports whether a delegated admin role is configured
func (c *TenantAuthConfig) HasAdminRole() bool {
	return c != nil && c.AdminRoleID != ""
}

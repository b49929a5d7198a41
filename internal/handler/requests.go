package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
)

const maxBodyBytes = 64 << 10

// CallerRequest carries the identity the chat bot attests for a command
type CallerRequest struct {
	RequesterID   string   `json:"requester_id"`
	Roles         []string `json:"roles,omitempty"`
	PlatformAdmin bool     `json:"platform_admin,omitempty"`
}

// Caller binds the identity to the tenant from the path
func (c CallerRequest) Caller(tenantID string) model.Caller {
	return model.Caller{
		TenantID:      tenantID,
		RequesterID:   c.RequesterID,
		Roles:         c.Roles,
		PlatformAdmin: c.PlatformAdmin,
	}
}

// SubmitItemRequest represents the HTTP request body for Submit.
type SubmitItemRequest struct {
	Payload string `json:"payload"`
}

// SetAdminRoleRequest represents the HTTP request body for SetAdminRole.
type SetAdminRoleRequest struct {
	CallerRequest
	RoleID string `json:"role_id"`
}

// CommandRequest represents the HTTP request body for a text command.
type CommandRequest struct {
	CallerRequest
	Text string `json:"text"`
}

// ItemResponse is an item as listed to moderators
type ItemResponse struct {
	ID          string    `json:"id"`
	Payload     string    `json:"payload"`
	ReportCount int       `json:"report_count"`
	Eligible    bool      `json:"eligible"`
	CreatedAt   time.Time `json:"created_at"`
}

func newItemResponse(item *model.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID,
		Payload:     item.Payload,
		ReportCount: item.ReportCount,
		Eligible:    item.Eligible(),
		CreatedAt:   item.CreatedAt,
	}
}

// ListItemsResponse represents the HTTP response body for the item listing.
type ListItemsResponse struct {
	Items         []ItemResponse `json:"items"`
	EligibleCount int            `json:"eligible_count"`
}

// ReportResponse represents the HTTP response body for Report.
type ReportResponse struct {
	ItemID      string `json:"item_id"`
	ReportCount int    `json:"report_count"`
	Eligible    bool   `json:"eligible"`
}

// ResetResponse represents the HTTP response body for both reset routes.
type ResetResponse struct {
	TenantID     string `json:"tenant_id"`
	RequesterID  string `json:"requester_id,omitempty"`
	RecordsReset int64  `json:"records_reset"`
}

// AdminRoleResponse represents the HTTP response body for the admin role routes.
type AdminRoleResponse struct {
	TenantID    string `json:"tenant_id"`
	AdminRoleID string `json:"admin_role_id"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

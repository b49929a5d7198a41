// Package handler provides HTTP request handlers for the dispenser API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/command"
	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader lets clients retry Distribute safely
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the idempotency store
	ReplayedHeader = "Idempotent-Replayed"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	engine       *service.Engine
	executor     *command.Executor
	errorHandler *dserrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	engine *service.Engine,
	executor *command.Executor,
	errorHandler *dserrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:       engine,
		executor:     executor,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// SubmitItem handles POST /v1/items requests.
func (h *Handlers) SubmitItem(w http.ResponseWriter, r *http.Request) {
	var req SubmitItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}

	item, err := h.engine.Submit(r.Context(), req.Payload)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, newItemResponse(item))
}

// ListItems handles GET /v1/items requests.
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ListItems(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := ListItemsResponse{Items: make([]ItemResponse, 0, len(items))}
	for _, item := range items {
		ir := newItemResponse(item)
		if ir.Eligible {
			resp.EligibleCount++
		}
		resp.Items = append(resp.Items, ir)
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// ReportItem handles POST /v1/items/{item_id}/reports requests.
func (h *Handlers) ReportItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["item_id"]

	count, err := h.engine.ReportItem(r.Context(), itemID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ReportResponse{
		ItemID:      itemID,
		ReportCount: count,
		Eligible:    count < model.ReportThreshold,
	})
}

// Distribute handles POST /v1/tenants/{tenant_id}/distribute requests.
func (h *Handlers) Distribute(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}
	caller := req.Caller(mux.Vars(r)["tenant_id"])

	result, replayed, err := h.engine.DistributeIdempotent(r.Context(), caller, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	h.writeJSONResponse(w, http.StatusOK, result)
}

// UsageStatus handles GET /v1/tenants/{tenant_id}/usage/{requester_id}
// requests. Roles are passed as repeated "role" query parameters.
func (h *Handlers) UsageStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	caller := CallerRequest{
		RequesterID: vars["requester_id"],
		Roles:       query["role"],
	}.Caller(vars["tenant_id"])

	status, err := h.engine.UsageStatus(r.Context(), caller)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, status)
}

// ResetAll handles POST /v1/tenants/{tenant_id}/admin/reset requests.
func (h *Handlers) ResetAll(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}
	tenantID := mux.Vars(r)["tenant_id"]

	n, err := h.engine.ResetAll(r.Context(), req.Caller(tenantID))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ResetResponse{TenantID: tenantID, RecordsReset: n})
}

// ResetOne handles POST /v1/tenants/{tenant_id}/admin/reset/{requester_id}
// requests.
func (h *Handlers) ResetOne(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}
	vars := mux.Vars(r)

	n, err := h.engine.ResetOne(r.Context(), req.Caller(vars["tenant_id"]), vars["requester_id"])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ResetResponse{
		TenantID:     vars["tenant_id"],
		RequesterID:  vars["requester_id"],
		RecordsReset: n,
	})
}

// SetAdminRole handles PUT /v1/tenants/{tenant_id}/admin/role requests.
func (h *Handlers) SetAdminRole(w http.ResponseWriter, r *http.Request) {
	var req SetAdminRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}
	tenantID := mux.Vars(r)["tenant_id"]

	cfg, err := h.engine.SetAdminRole(r.Context(), req.Caller(tenantID), req.RoleID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, AdminRoleResponse{TenantID: cfg.TenantID, AdminRoleID: cfg.AdminRoleID})
}

// GetAdminRole handles GET /v1/tenants/{tenant_id}/admin/role requests.
func (h *Handlers) GetAdminRole(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	role, err := h.engine.AdminRole(r.Context(), tenantID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, AdminRoleResponse{TenantID: tenantID, AdminRoleID: role})
}

// Command handles POST /v1/tenants/{tenant_id}/commands requests.
func (h *Handlers) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID(r))
		return
	}
	caller := req.Caller(mux.Vars(r)["tenant_id"])

	reply, err := h.executor.Execute(r.Context(), caller, req.Text, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if reply.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	h.writeJSONResponse(w, http.StatusOK, reply)
}

func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// RegisterRoutes mounts the v1 API on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/v1").Subrouter()

	// Item pool
	v1.HandleFunc("/items", h.SubmitItem).Methods(http.MethodPost)
	v1.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	v1.HandleFunc("/items/{item_id}/reports", h.ReportItem).Methods(http.MethodPost)

	// Per tenant quota
	tenants := v1.PathPrefix("/tenants/{tenant_id}").Subrouter()
	tenants.HandleFunc("/distribute", h.Distribute).Methods(http.MethodPost)
	tenants.HandleFunc("/usage/{requester_id}", h.UsageStatus).Methods(http.MethodGet)
	tenants.HandleFunc("/commands", h.Command).Methods(http.MethodPost)

	// Administration
	admin := tenants.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/reset", h.ResetAll).Methods(http.MethodPost)
	admin.HandleFunc("/reset/{requester_id}", h.ResetOne).Methods(http.MethodPost)
	admin.HandleFunc("/role", h.SetAdminRole).Methods(http.MethodPut)
	admin.HandleFunc("/role", h.GetAdminRole).Methods(http.MethodGet)
}

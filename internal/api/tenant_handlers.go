package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbunker/callbunker/internal/api/middleware"
	"github.com/callbunker/callbunker/internal/database/models"
)

// Tenant defaults applied on create.
const (
	defaultRetryLimit       = 3
	defaultRateLimitWindow  = 3600
	defaultRateLimitMax     = 5
	defaultRateLimitBlockMn = 60
)

// tenantRequest is the JSON body for creating or updating a tenant. Nil
// pointers leave the stored value unchanged on update.
type tenantRequest struct {
	ScreeningNumber        *string `json:"screening_number"`
	OwnerLabel             *string `json:"owner_label"`
	Email                  *string `json:"email"`
	ForwardTo              *string `json:"forward_to"`
	PIN                    *string `json:"pin"`
	Passphrase             *string `json:"passphrase"`
	RetryLimit             *int    `json:"retry_limit"`
	ForwardMode            *string `json:"forward_mode"`
	RateLimitWindowSeconds *int    `json:"rate_limit_window_seconds"`
	RateLimitMaxAttempts   *int    `json:"rate_limit_max_attempts"`
	RateLimitBlockMinutes  *int    `json:"rate_limit_block_minutes"`
	Active                 *bool   `json:"active"`
	PushToken              *string `json:"push_token"`
}

// selfSettingsRequest is the subset of tenant fields a tenant may change.
type selfSettingsRequest struct {
	OwnerLabel  *string `json:"owner_label"`
	Email       *string `json:"email"`
	ForwardTo   *string `json:"forward_to"`
	PIN         *string `json:"pin"`
	Passphrase  *string `json:"passphrase"`
	RetryLimit  *int    `json:"retry_limit"`
	ForwardMode *string `json:"forward_mode"`
	PushToken   *string `json:"push_token"`
}

// tenantResponse is the JSON shape of a tenant. The PIN and passphrase are
// never returned.
type tenantResponse struct {
	ID                     int64  `json:"id"`
	ScreeningNumber        string `json:"screening_number"`
	OwnerLabel             string `json:"owner_label"`
	Email                  string `json:"email"`
	ForwardTo              string `json:"forward_to"`
	RetryLimit             int    `json:"retry_limit"`
	ForwardMode            string `json:"forward_mode"`
	RateLimitWindowSeconds int    `json:"rate_limit_window_seconds"`
	RateLimitMaxAttempts   int    `json:"rate_limit_max_attempts"`
	RateLimitBlockMinutes  int    `json:"rate_limit_block_minutes"`
	Active                 bool   `json:"active"`
	PushEnabled            bool   `json:"push_enabled"`
	CreatedAt              string `json:"created_at"`
	UpdatedAt              string `json:"updated_at"`
}

func toTenantResponse(t *models.Tenant) tenantResponse {
	return tenantResponse{
		ID:                     t.ID,
		ScreeningNumber:        t.ScreeningNumber,
		OwnerLabel:             t.OwnerLabel,
		Email:                  t.Email,
		ForwardTo:              t.ForwardTo,
		RetryLimit:             t.RetryLimit,
		ForwardMode:            t.ForwardMode,
		RateLimitWindowSeconds: t.RateLimitWindowSeconds,
		RateLimitMaxAttempts:   t.RateLimitMaxAttempts,
		RateLimitBlockMinutes:  t.RateLimitBlockMinutes,
		Active:                 t.Active,
		PushEnabled:            t.PushToken != "",
		CreatedAt:              t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              t.UpdatedAt.Format(time.RFC3339),
	}
}

// applyTenantRequest validates req and copies the provided fields onto t.
func applyTenantRequest(t *models.Tenant, req tenantRequest) string {
	if req.ScreeningNumber != nil {
		n, errMsg := validatePhone("screening_number", *req.ScreeningNumber)
		if errMsg != "" {
			return errMsg
		}
		t.ScreeningNumber = n
	}
	if req.RateLimitWindowSeconds != nil || req.RateLimitMaxAttempts != nil || req.RateLimitBlockMinutes != nil {
		if errMsg := firstError(
			validateIntRange("rate_limit_window_seconds", req.RateLimitWindowSeconds, 60, 7*24*3600),
			validateIntRange("rate_limit_max_attempts", req.RateLimitMaxAttempts, 1, 100),
			validateIntRange("rate_limit_block_minutes", req.RateLimitBlockMinutes, 1, 30*24*60),
		); errMsg != "" {
			return errMsg
		}
		if req.RateLimitWindowSeconds != nil {
			t.RateLimitWindowSeconds = *req.RateLimitWindowSeconds
		}
		if req.RateLimitMaxAttempts != nil {
			t.RateLimitMaxAttempts = *req.RateLimitMaxAttempts
		}
		if req.RateLimitBlockMinutes != nil {
			t.RateLimitBlockMinutes = *req.RateLimitBlockMinutes
		}
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	return applySelfSettings(t, selfSettingsRequest{
		OwnerLabel:  req.OwnerLabel,
		Email:       req.Email,
		ForwardTo:   req.ForwardTo,
		PIN:         req.PIN,
		Passphrase:  req.Passphrase,
		RetryLimit:  req.RetryLimit,
		ForwardMode: req.ForwardMode,
		PushToken:   req.PushToken,
	})
}

// applySelfSettings validates and copies the tenant-editable fields.
func applySelfSettings(t *models.Tenant, req selfSettingsRequest) string {
	if req.OwnerLabel != nil {
		if errMsg := firstError(
			validateStringLen("owner_label", *req.OwnerLabel, maxLabelLen),
			validateNoControlChars("owner_label", *req.OwnerLabel),
		); errMsg != "" {
			return errMsg
		}
		t.OwnerLabel = *req.OwnerLabel
	}
	if req.Email != nil {
		if errMsg := validateEmail("email", *req.Email); errMsg != "" {
			return errMsg
		}
		t.Email = *req.Email
	}
	if req.ForwardTo != nil {
		n, errMsg := validatePhone("forward_to", *req.ForwardTo)
		if errMsg != "" {
			return errMsg
		}
		t.ForwardTo = n
	}
	if req.PIN != nil {
		if errMsg := validatePIN("pin", *req.PIN); errMsg != "" {
			return errMsg
		}
		t.PIN = *req.PIN
	}
	if req.Passphrase != nil {
		if errMsg := validatePassphrase("passphrase", *req.Passphrase); errMsg != "" {
			return errMsg
		}
		t.Passphrase = *req.Passphrase
	}
	if req.RetryLimit != nil {
		if errMsg := validateIntRange("retry_limit", req.RetryLimit, 1, 10); errMsg != "" {
			return errMsg
		}
		t.RetryLimit = *req.RetryLimit
	}
	if req.ForwardMode != nil {
		if errMsg := validateForwardMode("forward_mode", *req.ForwardMode); errMsg != "" {
			return errMsg
		}
		t.ForwardMode = *req.ForwardMode
	}
	if req.PushToken != nil {
		if errMsg := validateStringLen("push_token", *req.PushToken, maxTokenLen); errMsg != "" {
			return errMsg
		}
		t.PushToken = *req.PushToken
	}
	if t.ForwardTo != "" && t.ForwardTo == t.ScreeningNumber {
		return "forward_to must differ from screening_number"
	}
	return ""
}

// parseID extracts a positive int64 URL parameter.
func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// loadTenant resolves the {id} parameter, writing the error response when
// the tenant cannot be returned.
func (s *Server) loadTenant(w http.ResponseWriter, r *http.Request, op string) *models.Tenant {
	id, ok := parseID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return nil
	}
	t, err := s.tenants.GetByID(r.Context(), id)
	if err != nil {
		slog.Error(op+": failed to query tenant", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return nil
	}
	return t
}

// screeningNumberTaken reports whether number belongs to a tenant other
// than selfID.
func (s *Server) screeningNumberTaken(ctx context.Context, number string, selfID int64) (bool, error) {
	other, err := s.tenants.GetByScreeningNumber(ctx, number)
	if err != nil {
		return false, err
	}
	return other != nil && other.ID != selfID, nil
}

// handleListTenants returns tenants with pagination.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	tenants, err := s.tenants.List(r.Context())
	if err != nil {
		slog.Error("list tenants: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]tenantResponse, len(tenants))
	for i := range tenants {
		all[i] = toTenantResponse(&tenants[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleCreateTenant creates a new tenant.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	var missing string
	switch {
	case req.ScreeningNumber == nil:
		missing = "screening_number"
	case req.ForwardTo == nil:
		missing = "forward_to"
	case req.PIN == nil:
		missing = "pin"
	case req.Passphrase == nil:
		missing = "passphrase"
	}
	if missing != "" {
		writeError(w, http.StatusBadRequest, missing+" is required")
		return
	}

	t := &models.Tenant{
		RetryLimit:             defaultRetryLimit,
		ForwardMode:            models.ForwardModeBridge,
		RateLimitWindowSeconds: defaultRateLimitWindow,
		RateLimitMaxAttempts:   defaultRateLimitMax,
		RateLimitBlockMinutes:  defaultRateLimitBlockMn,
		Active:                 true,
	}
	if errMsg := applyTenantRequest(t, req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	taken, err := s.screeningNumberTaken(r.Context(), t.ScreeningNumber, 0)
	if err != nil {
		slog.Error("create tenant: failed to check screening number", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if taken {
		writeError(w, http.StatusConflict, "screening number already in use")
		return
	}

	if err := s.tenants.Create(r.Context(), t); err != nil {
		slog.Error("create tenant: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant created", "tenant_id", t.ID, "screening_number", t.ScreeningNumber)
	writeJSON(w, http.StatusCreated, toTenantResponse(t))
}

// handleGetTenant returns a single tenant by ID.
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "get tenant")
	if t == nil {
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// handleUpdateTenant applies a partial update to a tenant.
func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "update tenant")
	if t == nil {
		return
	}

	var req tenantRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := applyTenantRequest(t, req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	taken, err := s.screeningNumberTaken(r.Context(), t.ScreeningNumber, t.ID)
	if err != nil {
		slog.Error("update tenant: failed to check screening number", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if taken {
		writeError(w, http.StatusConflict, "screening number already in use")
		return
	}

	if err := s.tenants.Update(r.Context(), t); err != nil {
		slog.Error("update tenant: failed to update", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant updated", "tenant_id", t.ID)
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// handleDeleteTenant removes a tenant and everything recorded for it.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "delete tenant")
	if t == nil {
		return
	}

	if err := s.tenants.Delete(r.Context(), t.ID); err != nil {
		slog.Error("delete tenant: failed to delete", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant deleted", "tenant_id", t.ID, "screening_number", t.ScreeningNumber)
	if s.notifier != nil {
		s.notifier.TenantDeleted(t)
	}

	w.WriteHeader(http.StatusNoContent)
}

// selfTenant loads the tenant named by the caller's token.
func (s *Server) selfTenant(w http.ResponseWriter, r *http.Request, op string) *models.Tenant {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	t, err := s.tenants.GetByID(r.Context(), claims.TenantID)
	if err != nil {
		slog.Error(op+": failed to query tenant", "error", err, "tenant_id", claims.TenantID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return nil
	}
	return t
}

// handleGetSelfSettings returns the signed-in tenant's settings.
func (s *Server) handleGetSelfSettings(w http.ResponseWriter, r *http.Request) {
	t := s.selfTenant(w, r, "get self settings")
	if t == nil {
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// handleUpdateSelfSettings lets a tenant change their own PIN, passphrase,
// forwarding and notification settings.
func (s *Server) handleUpdateSelfSettings(w http.ResponseWriter, r *http.Request) {
	t := s.selfTenant(w, r, "update self settings")
	if t == nil {
		return
	}

	var req selfSettingsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := applySelfSettings(t, req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if err := s.tenants.Update(r.Context(), t); err != nil {
		slog.Error("update self settings: failed to update", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant updated own settings", "tenant_id", t.ID)
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

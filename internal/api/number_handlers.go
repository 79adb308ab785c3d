package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type numberRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type assignRequest struct {
	TenantID int64 `json:"tenant_id"`
}

type numberResponse struct {
	ID          int64   `json:"id"`
	PhoneNumber string  `json:"phone_number"`
	TenantID    *int64  `json:"tenant_id"`
	AssignedAt  *string `json:"assigned_at"`
	CreatedAt   string  `json:"created_at"`
}

func toNumberResponse(n *models.PoolNumber) numberResponse {
	resp := numberResponse{
		ID:          n.ID,
		PhoneNumber: n.PhoneNumber,
		TenantID:    n.TenantID,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}
	if n.AssignedAt != nil {
		s := n.AssignedAt.Format(time.RFC3339)
		resp.AssignedAt = &s
	}
	return resp
}

// loadNumber resolves the {id} parameter to a pool number.
func (s *Server) loadNumber(w http.ResponseWriter, r *http.Request, op string) *models.PoolNumber {
	id, ok := parseID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid number id")
		return nil
	}
	n, err := s.pool.GetByID(r.Context(), id)
	if err != nil {
		slog.Error(op+": failed to query", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "number not found")
		return nil
	}
	return n
}

// handleListNumbers returns the provider number pool.
func (s *Server) handleListNumbers(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	nums, err := s.pool.List(r.Context())
	if err != nil {
		slog.Error("list numbers: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]numberResponse, len(nums))
	for i := range nums {
		all[i] = toNumberResponse(&nums[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleCreateNumber adds an unassigned number to the pool.
func (s *Server) handleCreateNumber(w http.ResponseWriter, r *http.Request) {
	var req numberRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	number, errMsg := validatePhone("phone_number", req.PhoneNumber)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.pool.GetByNumber(r.Context(), number)
	if err != nil {
		slog.Error("create number: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "number already in pool")
		return
	}

	n := &models.PoolNumber{PhoneNumber: number}
	if err := s.pool.Create(r.Context(), n); err != nil {
		slog.Error("create number: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("pool number added", "number_id", n.ID, "phone_number", n.PhoneNumber)
	writeJSON(w, http.StatusCreated, toNumberResponse(n))
}

// handleDeleteNumber removes a number from the pool.
func (s *Server) handleDeleteNumber(w http.ResponseWriter, r *http.Request) {
	n := s.loadNumber(w, r, "delete number")
	if n == nil {
		return
	}

	if err := s.pool.Delete(r.Context(), n.ID); err != nil {
		slog.Error("delete number: failed to delete", "error", err, "number_id", n.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("pool number removed", "number_id", n.ID, "phone_number", n.PhoneNumber)
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignNumber dedicates a pool number to a tenant.
func (s *Server) handleAssignNumber(w http.ResponseWriter, r *http.Request) {
	n := s.loadNumber(w, r, "assign number")
	if n == nil {
		return
	}

	var req assignRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.TenantID <= 0 {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if n.TenantID != nil && *n.TenantID != req.TenantID {
		writeError(w, http.StatusConflict, "number is assigned to another tenant")
		return
	}

	t, err := s.tenants.GetByID(r.Context(), req.TenantID)
	if err != nil {
		slog.Error("assign number: failed to query tenant", "error", err, "tenant_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	if err := s.pool.Assign(r.Context(), n.ID, t.ID); err != nil {
		slog.Error("assign number: failed to update", "error", err, "number_id", n.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := s.pool.GetByID(r.Context(), n.ID)
	if err != nil || updated == nil {
		slog.Error("assign number: failed to re-fetch", "error", err, "number_id", n.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("pool number assigned", "number_id", n.ID, "tenant_id", t.ID)
	writeJSON(w, http.StatusOK, toNumberResponse(updated))
}

// handleReleaseNumber returns a number to the unassigned pool.
func (s *Server) handleReleaseNumber(w http.ResponseWriter, r *http.Request) {
	n := s.loadNumber(w, r, "release number")
	if n == nil {
		return
	}

	if err := s.pool.Release(r.Context(), n.ID); err != nil {
		slog.Error("release number: failed to update", "error", err, "number_id", n.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	n.TenantID = nil
	n.AssignedAt = nil
	slog.Info("pool number released", "number_id", n.ID)
	writeJSON(w, http.StatusOK, toNumberResponse(n))
}

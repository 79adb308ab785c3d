package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type trustRequest struct {
	Number       string `json:"number"`
	CustomPIN    string `json:"custom_pin"`
	AllowsVerbal bool   `json:"allows_verbal"`
}

type trustResponse struct {
	ID           int64  `json:"id"`
	CallerNumber string `json:"caller_number"`
	HasCustomPIN bool   `json:"has_custom_pin"`
	AllowsVerbal bool   `json:"allows_verbal"`
	Source       string `json:"source"`
	CreatedAt    string `json:"created_at"`
}

type trustCheckResponse struct {
	Number  string         `json:"number"`
	Trusted bool           `json:"trusted"`
	Entry   *trustResponse `json:"entry,omitempty"`
}

func toTrustResponse(e *models.TrustEntry) trustResponse {
	return trustResponse{
		ID:           e.ID,
		CallerNumber: e.CallerNumber,
		HasCustomPIN: e.CustomPIN != "",
		AllowsVerbal: e.AllowsVerbal,
		Source:       e.Source,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

// parseAnnotatedNumber splits "617-123-1213 * 1122" into the caller's
// digits and a per-caller PIN. Input without a '*' has no PIN.
func parseAnnotatedNumber(s string) (number, pin, errMsg string) {
	raw, annotation, annotated := strings.Cut(s, "*")
	number, errMsg = validatePhone("number", raw)
	if errMsg != "" {
		return "", "", errMsg
	}
	if !annotated {
		return number, "", ""
	}
	pin = strings.TrimSpace(annotation)
	if errMsg := validatePIN("number annotation", pin); errMsg != "" {
		return "", "", errMsg
	}
	return number, pin, ""
}

// handleListTrust returns a tenant's trusted callers.
func (s *Server) handleListTrust(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	t := s.loadTenant(w, r, "list trust")
	if t == nil {
		return
	}

	entries, err := s.trust.List(r.Context(), t.ID)
	if err != nil {
		slog.Error("list trust: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]trustResponse, len(entries))
	for i := range entries {
		all[i] = toTrustResponse(&entries[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleAddTrust whitelists a caller for a tenant.
func (s *Server) handleAddTrust(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "add trust")
	if t == nil {
		return
	}

	var req trustRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	number, pin, errMsg := parseAnnotatedNumber(req.Number)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.CustomPIN != "" {
		if pin != "" && pin != req.CustomPIN {
			writeError(w, http.StatusBadRequest, "custom_pin conflicts with number annotation")
			return
		}
		if errMsg := validatePIN("custom_pin", req.CustomPIN); errMsg != "" {
			writeError(w, http.StatusBadRequest, errMsg)
			return
		}
		pin = req.CustomPIN
	}
	if pin == t.PIN {
		pin = ""
	}

	entry := &models.TrustEntry{
		TenantID:     t.ID,
		CallerNumber: number,
		CustomPIN:    pin,
		AllowsVerbal: req.AllowsVerbal,
		Source:       models.TrustSourceManual,
	}
	added, err := s.trust.AddIfAbsent(r.Context(), entry)
	if err != nil {
		slog.Error("add trust: failed to insert", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !added {
		writeError(w, http.StatusConflict, "caller already trusted")
		return
	}

	slog.Info("caller trusted manually", "tenant_id", t.ID, "caller", number, "custom_pin", pin != "")
	writeJSON(w, http.StatusCreated, toTrustResponse(entry))
}

// handleCheckTrust reports whether ?number= is on a tenant's trust list.
func (s *Server) handleCheckTrust(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "check trust")
	if t == nil {
		return
	}

	number, errMsg := validatePhone("number", r.URL.Query().Get("number"))
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	entry, err := s.trust.Get(r.Context(), t.ID, number)
	if err != nil {
		slog.Error("check trust: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := trustCheckResponse{Number: number, Trusted: entry != nil}
	if entry != nil {
		e := toTrustResponse(entry)
		resp.Entry = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteTrust removes a trust entry.
func (s *Server) handleDeleteTrust(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "delete trust")
	if t == nil {
		return
	}
	entryID, ok := parseID(r, "entryID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trust entry id")
		return
	}

	entries, err := s.trust.List(r.Context(), t.ID)
	if err != nil {
		slog.Error("delete trust: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var found *models.TrustEntry
	for i := range entries {
		if entries[i].ID == entryID {
			found = &entries[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "trust entry not found")
		return
	}

	if err := s.trust.Delete(r.Context(), t.ID, entryID); err != nil {
		slog.Error("delete trust: failed to delete", "error", err, "tenant_id", t.ID, "entry_id", entryID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("trust entry removed", "tenant_id", t.ID, "caller", found.CallerNumber)
	w.WriteHeader(http.StatusNoContent)
}

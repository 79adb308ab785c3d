package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbunker/callbunker/internal/database/models"
)

type blockResponse struct {
	CallerNumber     string `json:"caller_number"`
	UnblockAt        string `json:"unblock_at"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	CreatedAt        string `json:"created_at"`
}

func toBlockResponse(b *models.BlockRecord, now time.Time) blockResponse {
	return blockResponse{
		CallerNumber:     b.CallerNumber,
		UnblockAt:        b.UnblockAt.Format(time.RFC3339),
		RemainingSeconds: int64(b.Remaining(now).Seconds()),
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
	}
}

// handleListBlocks returns the callers currently blocked for a tenant.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	t := s.loadTenant(w, r, "list blocks")
	if t == nil {
		return
	}

	now := s.now()
	blocks, err := s.ledger.ListBlocks(r.Context(), t.ID, now)
	if err != nil {
		slog.Error("list blocks: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]blockResponse, len(blocks))
	for i := range blocks {
		all[i] = toBlockResponse(&blocks[i], now)
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleUnblock lifts a caller's block early. Failure history is kept, so a
// caller who fails again re-enters the block quickly.
func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "unblock")
	if t == nil {
		return
	}

	raw, err := url.PathUnescape(chi.URLParam(r, "caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller number")
		return
	}
	caller, errMsg := validatePhone("caller", raw)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	removed, err := s.ledger.Unblock(r.Context(), t.ID, caller)
	if err != nil {
		slog.Error("unblock: failed to delete", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "caller is not blocked")
		return
	}

	slog.Info("caller unblocked", "tenant_id", t.ID, "caller", caller)
	w.WriteHeader(http.StatusNoContent)
}

// handleClearFailures forgets every failed attempt recorded for a tenant.
func (s *Server) handleClearFailures(w http.ResponseWriter, r *http.Request) {
	t := s.loadTenant(w, r, "clear failures")
	if t == nil {
		return
	}

	n, err := s.ledger.ClearFailures(r.Context(), t.ID)
	if err != nil {
		slog.Error("clear failures: failed to delete", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("failure records cleared", "tenant_id", t.ID, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

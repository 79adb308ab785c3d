package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type callLogResponse struct {
	ID           string `json:"id"`
	CallSID      string `json:"call_sid"`
	CallerNumber string `json:"caller_number"`
	DialedNumber string `json:"dialed_number"`
	Outcome      string `json:"outcome"`
	Detail       string `json:"detail,omitempty"`
	Attempts     int    `json:"attempts"`
	CreatedAt    string `json:"created_at"`
}

type voicemailResponse struct {
	ID            int64  `json:"id"`
	CallerNumber  string `json:"caller_number"`
	RecordingSID  string `json:"recording_sid"`
	RecordingURL  string `json:"recording_url"`
	DurationSecs  int    `json:"duration_secs"`
	Transcription string `json:"transcription,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toCallLogResponse(l *models.CallLog) callLogResponse {
	return callLogResponse{
		ID:           l.ID,
		CallSID:      l.CallSID,
		CallerNumber: l.CallerNumber,
		DialedNumber: l.DialedNumber,
		Outcome:      l.Outcome,
		Detail:       l.Detail,
		Attempts:     l.Attempts,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
}

func toVoicemailResponse(m *models.VoicemailMessage) voicemailResponse {
	return voicemailResponse{
		ID:            m.ID,
		CallerNumber:  m.CallerNumber,
		RecordingSID:  m.RecordingSID,
		RecordingURL:  m.RecordingURL,
		DurationSecs:  m.DurationSecs,
		Transcription: m.Transcription,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

// handleListCalls returns a tenant's most recent screening decisions. Only
// offset+limit rows are read, so total is exact only on the last page.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	t := s.loadTenant(w, r, "list calls")
	if t == nil {
		return
	}

	logs, err := s.callLogs.ListByTenant(r.Context(), t.ID, pg.Offset+pg.Limit)
	if err != nil {
		slog.Error("list calls: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]callLogResponse, len(logs))
	for i := range logs {
		all[i] = toCallLogResponse(&logs[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

// handleListVoicemails returns a tenant's most recent voicemails.
func (s *Server) handleListVoicemails(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	t := s.loadTenant(w, r, "list voicemails")
	if t == nil {
		return
	}

	msgs, err := s.voicemails.ListByTenant(r.Context(), t.ID, pg.Offset+pg.Limit)
	if err != nil {
		slog.Error("list voicemails: failed to query", "error", err, "tenant_id", t.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]voicemailResponse, len(msgs))
	for i := range msgs {
		all[i] = toVoicemailResponse(&msgs[i])
	}
	writeJSON(w, http.StatusOK, page(all, pg))
}

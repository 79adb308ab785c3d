package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/callbunker/callbunker/internal/api/middleware"
	"github.com/callbunker/callbunker/internal/database"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type selfAuthRequest struct {
	ScreeningNumber string `json:"screening_number"`
	PIN             string `json:"pin"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	TenantID  int64  `json:"tenant_id,omitempty"`
}

// handleLogin exchanges operator credentials for an admin token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := firstError(
		validateRequiredStringLen("username", req.Username, maxLabelLen),
		validateRequiredStringLen("password", req.Password, maxPasswordLen),
	); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	user, err := s.admins.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("login: failed to query admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		slog.Warn("login: unknown username", "ip", middleware.ClientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		slog.Error("login: unreadable password hash", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		slog.Warn("login: wrong password", "user_id", user.ID, "ip", middleware.ClientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateAdminToken(s.jwtSecret, user.ID, user.Username, s.tokenTTL)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt.Format(time.RFC3339)})
}

// handleSelfAuth lets a tenant sign in with their screening number and PIN.
func (s *Server) handleSelfAuth(w http.ResponseWriter, r *http.Request) {
	var req selfAuthRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	number, errMsg := validatePhone("screening_number", req.ScreeningNumber)
	if errMsg == "" {
		errMsg = validatePIN("pin", req.PIN)
	}
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	t, err := s.tenants.GetByScreeningNumber(r.Context(), number)
	if err != nil {
		slog.Error("self auth: failed to query tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if t == nil || subtle.ConstantTimeCompare([]byte(t.PIN), []byte(req.PIN)) != 1 {
		slog.Warn("self auth: rejected", "screening_number", number, "ip", middleware.ClientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !t.Active {
		writeError(w, http.StatusForbidden, "account inactive")
		return
	}

	token, expiresAt, err := middleware.GenerateTenantToken(s.jwtSecret, t.ID, s.tokenTTL)
	if err != nil {
		slog.Error("self auth: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant signed in", "tenant_id", t.ID)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		TenantID:  t.ID,
	})
}

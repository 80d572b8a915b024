package serve

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	fleet "github.com/everydev1618/botfleet"
)

// askFallback is returned when the caller has no system prompt configured.
const askFallback = "Sorry, I don't know how to answer that yet."

// handleLogin verifies credentials and issues an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := s.store.UserByUsername(req.Username)
	if err != nil || !VerifyPassword(req.Password, user.PasswordHash) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "incorrect username or password"})
		return
	}
	if !user.IsActive {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "user is disabled"})
		return
	}

	token, err := s.createAccessToken(user.Username)
	if err != nil {
		slog.Error("login: token issue failed", "username", user.Username, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "could not issue token"})
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// handleCreateUser registers a new account (admin only).
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, _ *User) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "username and password are required"})
		return
	}

	if _, err := s.store.UserByUsername(req.Username); err == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "username already registered"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	id, err := s.store.CreateUser(req.Username, hash, req.IsAdmin)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	slog.Info("user created", "username", req.Username, "admin", req.IsAdmin)
	writeJSON(w, http.StatusOK, CreateUserResponse{UserID: id})
}

// handleBlockUser disables an account (admin only). The user's worker, if
// any, is stopped by the next reconciliation cycle.
func (s *Server) handleBlockUser(w http.ResponseWriter, r *http.Request, _ *User) {
	username := r.PathValue("username")
	if err := s.store.SetUserActive(username, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	slog.Info("user blocked", "username", username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

// handleGetProfile returns the caller's account.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user *User) {
	writeJSON(w, http.StatusOK, ProfileResponse{
		Username:     user.Username,
		IsAdmin:      user.IsAdmin,
		BotToken:     user.BotToken,
		SystemPrompt: user.SystemPrompt,
	})
}

// handleUpdateProfile applies a partial profile change. Token changes are
// picked up by the next reconciliation cycle; prompt changes apply to the
// very next message since prompts are read fresh per message.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user *User) {
	var req ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := s.store.UpdateProfile(user.ID, ProfileUpdate{
		BotToken:     req.BotToken,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleAsk answers a one-off prompt with the caller's bot persona, the
// same path a Telegram message takes minus the platform session.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, user *User) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "prompt is required"})
		return
	}

	prompt, ok, err := s.store.SystemPrompt(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, AskResponse{Answer: askFallback})
		return
	}

	timeout := s.cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = fleet.DefaultCompletionTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	answer, err := s.completer.Complete(ctx, req.Prompt, prompt)
	if err != nil {
		slog.Error("ask: completion failed", "user", user.Username, "error", err)
		writeJSON(w, http.StatusOK, AskResponse{Answer: fleet.ReplyDegraded})
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

// handleFleetStatus returns the running worker set (admin only).
func (s *Server) handleFleetStatus(w http.ResponseWriter, r *http.Request, _ *User) {
	if s.sup == nil {
		writeJSON(w, http.StatusOK, []fleet.WorkerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

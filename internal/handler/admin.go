package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/server/middleware"
	"github.com/foyerhq/foyer/internal/service"
)

// AdminHandler manages the admin surface: login sessions, API keys, and the
// dashboard views over rooms and counters.
type AdminHandler struct {
	authSvc    *service.AuthService
	meetingSvc *service.MeetingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(authSvc *service.AuthService, meetingSvc *service.MeetingService) *AdminHandler {
	return &AdminHandler{
		authSvc:    authSvc,
		meetingSvc: meetingSvc,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login. The session
// token appears here and nowhere else.
type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies the admin password and mints a bearer session token. The
// first successful login fixes the password permanently.
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}

	session, err := h.authSvc.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "Authentication error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		TokenType: "bearer",
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout revokes the presented session token. Revoking a token that is
// already gone is not an error.
// POST /api/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if err := h.authSvc.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to log out: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out",
	})
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// ListAPIKeys returns every API key with its masked form. Raw keys are not
// recoverable after creation.
// GET /api/admin/api-keys
func (h *AdminHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.authSvc.ListAPIKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta: &model.ResponseMeta{
			Count: len(keys),
		},
	})
}

// createAPIKeyRequest is the expected payload for CreateAPIKey.
type createAPIKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// createAPIKeyResponse includes the plaintext key (shown once only).
type createAPIKeyResponse struct {
	ID          string    `json:"id"`
	Key         string    `json:"api_key"` // Plaintext, shown ONCE.
	KeyMask     string    `json:"key_mask"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateAPIKey generates a new API key, stores its hash, and returns the
// plaintext exactly once. Unknown permissions are dropped silently; a request
// with none left defaults to read-only.
// POST /api/admin/api-keys
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key, plaintext, err := h.authSvc.CreateAPIKey(r.Context(), req.Name, req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNameRequired):
			writeError(w, http.StatusBadRequest, "Name is required")
		case errors.Is(err, service.ErrNameTooLong):
			writeError(w, http.StatusBadRequest, "Name must be at most 100 characters")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create API key: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:          key.ID,
		Key:         plaintext,
		KeyMask:     key.KeyMask,
		Name:        key.Name,
		Permissions: key.Permissions,
		CreatedAt:   key.CreatedAt,
	})
}

// RevokeAPIKey deletes an API key by ID.
// DELETE /api/admin/api-keys/{keyID}
func (h *AdminHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")

	if err := h.authSvc.RevokeAPIKey(r.Context(), keyID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+keyID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key revoked",
	})
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// Stats returns dashboard counters. Room and participant figures read as
// zero when the media server is unreachable.
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.meetingSvc.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load stats: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ListRooms returns the media server's live rooms decorated with stored
// display names. An unreachable media server yields an empty list, not an
// error.
// GET /api/admin/rooms
func (h *AdminHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.meetingSvc.Rooms(r.Context())

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: rooms,
		Meta: &model.ResponseMeta{
			Count: len(rooms),
		},
	})
}

// updateRoomRequest is the expected payload for UpdateRoomMetadata.
type updateRoomRequest struct {
	DisplayName string `json:"display_name"`
}

// UpdateRoomMetadata sets the display name shown for a room code.
// PUT /api/admin/rooms/{roomName}
func (h *AdminHandler) UpdateRoomMetadata(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")

	var req updateRoomRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	meta, err := h.meetingSvc.SetRoomDisplayName(r.Context(), roomName, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRoomName):
			writeError(w, http.StatusBadRequest, "Invalid room name: "+roomName)
		case errors.Is(err, service.ErrNameRequired):
			writeError(w, http.StatusBadRequest, "Display name is required")
		case errors.Is(err, service.ErrNameTooLong):
			writeError(w, http.StatusBadRequest, "Display name must be at most 100 characters")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to update room: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

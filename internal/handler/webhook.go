package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/dispatch"
	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/service"
)

// WebhookHandler manages webhook subscriptions and the synchronous
// test-delivery endpoint.
type WebhookHandler struct {
	store      *config.Store
	dispatcher *dispatch.Dispatcher
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(store *config.Store, dispatcher *dispatch.Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		store:      store,
		dispatcher: dispatcher,
	}
}

// ---------------------------------------------------------------------------
// Webhook CRUD
// ---------------------------------------------------------------------------

// ListWebhooks returns every subscription with its signing secret masked.
// GET /api/admin/webhooks
func (h *WebhookHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.store.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list webhooks: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(hooks))
	for i := range hooks {
		resources = append(resources, webhookToMap(&hooks[i]))
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta: &model.ResponseMeta{
			Count: len(resources),
		},
	})
}

// createWebhookRequest is the expected payload for CreateWebhook.
type createWebhookRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// createWebhookResponse includes the plaintext signing secret (shown once
// only).
type createWebhookResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	Secret    string    `json:"secret"` // Plaintext, shown ONCE.
	CreatedAt time.Time `json:"created_at"`
}

// CreateWebhook registers a new subscription and returns its signing secret
// exactly once. Unknown event types are dropped silently; a request with none
// left fails.
// POST /api/admin/webhooks
func (h *WebhookHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if len(name) > model.MaxNameLength {
		writeError(w, http.StatusBadRequest, "Name must be at most 100 characters")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if !validTargetURL(req.URL) {
		writeError(w, http.StatusBadRequest, "URL must be absolute: "+req.URL)
		return
	}

	events := model.FilterEvents(req.Events)
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "No valid events specified", map[string]interface{}{
			"valid_events": model.AllEvents,
		})
		return
	}

	secret, err := service.NewWebhookSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate secret: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	hook := &model.Webhook{
		ID:      uuid.NewString(),
		Name:    name,
		URL:     req.URL,
		Events:  events,
		Enabled: enabled,
		Secret:  secret,
	}

	if err := h.store.CreateWebhook(r.Context(), hook); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save webhook: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createWebhookResponse{
		ID:        hook.ID,
		Name:      hook.Name,
		URL:       hook.URL,
		Events:    hook.Events,
		Enabled:   hook.Enabled,
		Secret:    hook.Secret,
		CreatedAt: hook.CreatedAt,
	})
}

// GetWebhook returns a single subscription with its secret masked.
// GET /api/admin/webhooks/{webhookID}
func (h *WebhookHandler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	hook, err := h.store.GetWebhook(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found: "+webhookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load webhook: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, webhookToMap(hook))
}

// updateWebhookRequest is the expected payload for UpdateWebhook. Pointer
// fields distinguish "omitted" from "set to zero value"; a nil Events slice
// means the event set is unchanged.
type updateWebhookRequest struct {
	Name    *string  `json:"name,omitempty"`
	URL     *string  `json:"url,omitempty"`
	Events  []string `json:"events,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// UpdateWebhook applies a partial update. Omitted fields keep their current
// values; supplied fields are validated the same way as at creation.
// PUT /api/admin/webhooks/{webhookID}
func (h *WebhookHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	var req updateWebhookRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	hook, err := h.store.GetWebhook(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found: "+webhookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load webhook: "+err.Error())
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Name is required")
			return
		}
		if len(name) > model.MaxNameLength {
			writeError(w, http.StatusBadRequest, "Name must be at most 100 characters")
			return
		}
		hook.Name = name
	}
	if req.URL != nil {
		if !validTargetURL(*req.URL) {
			writeError(w, http.StatusBadRequest, "URL must be absolute: "+*req.URL)
			return
		}
		hook.URL = *req.URL
	}
	if req.Events != nil {
		events := model.FilterEvents(req.Events)
		if len(events) == 0 {
			writeError(w, http.StatusBadRequest, "No valid events specified", map[string]interface{}{
				"valid_events": model.AllEvents,
			})
			return
		}
		hook.Events = events
	}
	if req.Enabled != nil {
		hook.Enabled = *req.Enabled
	}

	if err := h.store.UpdateWebhook(r.Context(), hook); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found: "+webhookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update webhook: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, webhookToMap(hook))
}

// DeleteWebhook removes a subscription. Deleting an unknown ID reports not
// found, on the first call and on every repeat.
// DELETE /api/admin/webhooks/{webhookID}
func (h *WebhookHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	if err := h.store.DeleteWebhook(r.Context(), webhookID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found: "+webhookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete webhook: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Webhook deleted",
	})
}

// TestWebhook sends a synthetic signed delivery to the subscription's URL and
// reports the outcome to the caller. This is the only delivery path whose
// result is returned synchronously.
// POST /api/admin/webhooks/{webhookID}/test
func (h *WebhookHandler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	hook, err := h.store.GetWebhook(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found: "+webhookID)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load webhook: "+err.Error())
		return
	}

	result := h.dispatcher.TestDelivery(r.Context(), hook)
	writeJSON(w, http.StatusOK, result)
}

// ---------------------------------------------------------------------------
// Serialization helpers (avoid exposing the signing secret)
// ---------------------------------------------------------------------------

func webhookToMap(hook *model.Webhook) map[string]interface{} {
	m := map[string]interface{}{
		"id":            hook.ID,
		"name":          hook.Name,
		"url":           hook.URL,
		"events":        hook.Events,
		"enabled":       hook.Enabled,
		"secret_mask":   hook.MaskedSecret(),
		"created_at":    hook.CreatedAt,
		"failure_count": hook.FailureCount,
	}
	if hook.LastTriggeredAt != nil {
		m["last_triggered_at"] = hook.LastTriggeredAt
	}
	return m
}

// validTargetURL reports whether raw parses as an absolute URL with a host.
func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foyerhq/foyer/internal/dispatch"
	"github.com/foyerhq/foyer/internal/model"
)

// receivedDelivery is one captured webhook POST.
type receivedDelivery struct {
	header http.Header
	body   []byte
}

// deliverySink is an httptest server that records webhook deliveries.
type deliverySink struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []receivedDelivery
	status   int
}

func newDeliverySink(t *testing.T, status int) *deliverySink {
	t.Helper()
	sink := &deliverySink{status: status}
	sink.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sink.mu.Lock()
		sink.received = append(sink.received, receivedDelivery{header: r.Header.Clone(), body: body})
		status := sink.status
		sink.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(sink.srv.Close)
	return sink
}

func (s *deliverySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *deliverySink) get(i int) receivedDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[i]
}

func TestCreateWebhookReturnsSecretOnce(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/admin/webhooks", toJSON(t, map[string]interface{}{
		"name":   "audit feed",
		"url":    "https://example.com/hooks/audit",
		"events": []string{model.EventRoomCreated, model.EventRoomDeleted},
	}))
	assertStatus(t, rr, http.StatusCreated)

	var created struct {
		ID      string   `json:"id"`
		Secret  string   `json:"secret"`
		Events  []string `json:"events"`
		Enabled bool     `json:"enabled"`
	}
	decodeJSON(t, rr, &created)

	if !strings.HasPrefix(created.Secret, "whsec_") {
		t.Errorf("secret = %q, want whsec_ prefix", created.Secret)
	}
	if !created.Enabled {
		t.Error("enabled should default to true")
	}
	if len(created.Events) != 2 {
		t.Errorf("events = %v, want 2 entries", created.Events)
	}

	// Neither the list nor the single view repeats the plaintext secret.
	list := env.do(t, http.MethodGet, "/api/admin/webhooks", nil)
	assertStatus(t, list, http.StatusOK)
	if body := list.Body.String(); strings.Contains(body, created.Secret) {
		t.Error("list response contains the plaintext secret")
	}

	single := env.do(t, http.MethodGet, "/api/admin/webhooks/"+created.ID, nil)
	assertStatus(t, single, http.StatusOK)
	var view map[string]interface{}
	decodeJSON(t, single, &view)
	if _, ok := view["secret"]; ok {
		t.Error("single view exposes the secret")
	}
	mask, _ := view["secret_mask"].(string)
	if !strings.HasPrefix(mask, "whsec_") || !strings.Contains(mask, "...") {
		t.Errorf("secret_mask = %q, want masked form", mask)
	}
}

func TestCreateWebhookValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{
			"url": "https://example.com", "events": []string{model.EventRoomCreated},
		}},
		{"name too long", map[string]interface{}{
			"name": strings.Repeat("n", 101), "url": "https://example.com", "events": []string{model.EventRoomCreated},
		}},
		{"missing url", map[string]interface{}{
			"name": "hook", "events": []string{model.EventRoomCreated},
		}},
		{"relative url", map[string]interface{}{
			"name": "hook", "url": "/hooks/audit", "events": []string{model.EventRoomCreated},
		}},
		{"no events", map[string]interface{}{
			"name": "hook", "url": "https://example.com",
		}},
		{"only invalid events", map[string]interface{}{
			"name": "hook", "url": "https://example.com", "events": []string{"room.exploded", "test"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/admin/webhooks", toJSON(t, tc.body))
			assertStatus(t, rr, http.StatusBadRequest)
		})
	}

	// Invalid events are filtered, not fatal, as long as one survives.
	rr := env.do(t, http.MethodPost, "/api/admin/webhooks", toJSON(t, map[string]interface{}{
		"name":    "partial",
		"url":     "https://example.com",
		"events":  []string{"room.exploded", model.EventParticipantJoined},
		"enabled": false,
	}))
	assertStatus(t, rr, http.StatusCreated)

	var created struct {
		Events  []string `json:"events"`
		Enabled bool     `json:"enabled"`
	}
	decodeJSON(t, rr, &created)
	if len(created.Events) != 1 || created.Events[0] != model.EventParticipantJoined {
		t.Errorf("events = %v, want [participant.joined]", created.Events)
	}
	if created.Enabled {
		t.Error("enabled = true, want explicit false honored")
	}
}

func TestUpdateWebhookPartial(t *testing.T) {
	env := newTestEnv(t)
	hook := env.seedWebhook(t, "https://example.com/hook",
		[]string{model.EventRoomCreated, model.EventRoomDeleted}, true)

	// Toggling enabled leaves everything else untouched.
	rr := env.do(t, http.MethodPut, "/api/admin/webhooks/"+hook.ID, toJSON(t, map[string]interface{}{
		"enabled": false,
	}))
	assertStatus(t, rr, http.StatusOK)

	var view struct {
		Name    string   `json:"name"`
		URL     string   `json:"url"`
		Events  []string `json:"events"`
		Enabled bool     `json:"enabled"`
	}
	decodeJSON(t, rr, &view)
	if view.Enabled {
		t.Error("enabled not updated")
	}
	if view.Name != hook.Name || view.URL != hook.URL || len(view.Events) != 2 {
		t.Errorf("partial update touched other fields: %+v", view)
	}

	rr = env.do(t, http.MethodPut, "/api/admin/webhooks/"+hook.ID, toJSON(t, map[string]interface{}{
		"name": "renamed",
	}))
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &view)
	if view.Name != "renamed" || len(view.Events) != 2 {
		t.Errorf("rename touched other fields: %+v", view)
	}

	// Supplied fields are validated like at creation.
	rr = env.do(t, http.MethodPut, "/api/admin/webhooks/"+hook.ID, toJSON(t, map[string]interface{}{
		"url": "not-absolute",
	}))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodPut, "/api/admin/webhooks/"+hook.ID, toJSON(t, map[string]interface{}{
		"events": []string{"room.exploded"},
	}))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodPut, "/api/admin/webhooks/"+hook.ID, toJSON(t, map[string]interface{}{
		"events": []string{},
	}))
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, http.MethodPut, "/api/admin/webhooks/no-such-id", toJSON(t, map[string]interface{}{
		"enabled": true,
	}))
	assertStatus(t, rr, http.StatusNotFound)
}

func TestDeleteWebhook(t *testing.T) {
	env := newTestEnv(t)
	hook := env.seedWebhook(t, "https://example.com/hook", []string{model.EventRoomCreated}, true)

	rr := env.do(t, http.MethodDelete, "/api/admin/webhooks/"+hook.ID, nil)
	assertStatus(t, rr, http.StatusOK)

	// Repeats keep reporting not found.
	rr = env.do(t, http.MethodDelete, "/api/admin/webhooks/"+hook.ID, nil)
	assertStatus(t, rr, http.StatusNotFound)
	rr = env.do(t, http.MethodDelete, "/api/admin/webhooks/"+hook.ID, nil)
	assertStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, http.MethodGet, "/api/admin/webhooks/"+hook.ID, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestTestWebhookDelivery(t *testing.T) {
	env := newTestEnv(t)
	sink := newDeliverySink(t, http.StatusOK)
	hook := env.seedWebhook(t, sink.srv.URL, []string{model.EventRoomCreated}, true)

	rr := env.do(t, http.MethodPost, "/api/admin/webhooks/"+hook.ID+"/test", nil)
	assertStatus(t, rr, http.StatusOK)

	var result model.DeliveryResult
	decodeJSON(t, rr, &result)
	if !result.Success || result.StatusCode != http.StatusOK {
		t.Errorf("result = %+v, want success with status 200", result)
	}
	if result.LatencyMs < 0 {
		t.Errorf("latency_ms = %v, want >= 0", result.LatencyMs)
	}

	if sink.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", sink.count())
	}
	got := sink.get(0)
	if event := got.header.Get(dispatch.HeaderEvent); event != model.EventTest {
		t.Errorf("event header = %q, want %q", event, model.EventTest)
	}
	if want := dispatch.Sign(hook.Secret, got.body); got.header.Get(dispatch.HeaderSignature) != want {
		t.Error("signature does not verify against the webhook secret")
	}

	stored, err := env.store.GetWebhook(context.Background(), hook.ID)
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if stored.LastTriggeredAt == nil {
		t.Error("last_triggered_at not recorded")
	}
	if stored.FailureCount != 0 {
		t.Errorf("failure_count = %d, want 0", stored.FailureCount)
	}
}

func TestTestWebhookReportsFailure(t *testing.T) {
	env := newTestEnv(t)
	sink := newDeliverySink(t, http.StatusInternalServerError)
	hook := env.seedWebhook(t, sink.srv.URL, []string{model.EventRoomCreated}, true)

	rr := env.do(t, http.MethodPost, "/api/admin/webhooks/"+hook.ID+"/test", nil)
	assertStatus(t, rr, http.StatusOK)

	var result model.DeliveryResult
	decodeJSON(t, rr, &result)
	if result.Success || result.StatusCode != http.StatusInternalServerError {
		t.Errorf("result = %+v, want failure with status 500", result)
	}

	stored, err := env.store.GetWebhook(context.Background(), hook.ID)
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if stored.FailureCount != 1 {
		t.Errorf("failure_count = %d, want 1", stored.FailureCount)
	}

	rr = env.do(t, http.MethodPost, "/api/admin/webhooks/no-such-id/test", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

// TestJoinTriggersWebhookDelivery walks the documented end-to-end flow: a
// webhook created over the API receives a signed room.created delivery when
// the first participant joins a room.
func TestJoinTriggersWebhookDelivery(t *testing.T) {
	env := newTestEnv(t)
	sink := newDeliverySink(t, http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/admin/webhooks", toJSON(t, map[string]interface{}{
		"name":   "lifecycle feed",
		"url":    sink.srv.URL,
		"events": []string{model.EventRoomCreated},
	}))
	assertStatus(t, rr, http.StatusCreated)

	var created struct {
		Secret string `json:"secret"`
	}
	decodeJSON(t, rr, &created)

	rr = env.do(t, http.MethodPost, "/api/token", toJSON(t, map[string]string{
		"room_name":        "standup",
		"participant_name": "alice",
	}))
	assertStatus(t, rr, http.StatusOK)

	waitFor(t, 5*time.Second, func() bool { return sink.count() >= 1 })

	got := sink.get(0)
	if event := got.header.Get(dispatch.HeaderEvent); event != model.EventRoomCreated {
		t.Errorf("event header = %q, want %q", event, model.EventRoomCreated)
	}
	if want := dispatch.Sign(created.Secret, got.body); got.header.Get(dispatch.HeaderSignature) != want {
		t.Error("signature does not verify against the secret from the create response")
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != model.EventRoomCreated {
		t.Errorf("payload type = %q, want %q", payload.Type, model.EventRoomCreated)
	}
	if payload.Data["room"] != "standup" {
		t.Errorf("payload room = %v, want standup", payload.Data["room"])
	}
	if payload.ID == "" || got.header.Get(dispatch.HeaderPayloadID) != payload.ID {
		t.Errorf("payload id %q does not match header %q", payload.ID, got.header.Get(dispatch.HeaderPayloadID))
	}

	// The subscription covers only room.created; participant.joined from the
	// same join must not add a second delivery.
	time.Sleep(200 * time.Millisecond)
	if sink.count() != 1 {
		t.Errorf("deliveries = %d, want exactly 1", sink.count())
	}
}

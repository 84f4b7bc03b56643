package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, workers, queueSize int) (*Dispatcher, *config.Store) {
	t.Helper()

	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	d := New(store, workers, queueSize, discardLogger())
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Shutdown(ctx)
	})
	return d, store
}

func mustCreateWebhook(t *testing.T, store *config.Store, url string, events []string, enabled bool) *model.Webhook {
	t.Helper()
	w := &model.Webhook{
		ID:      uuid.New().String(),
		Name:    "test hook",
		URL:     url,
		Events:  events,
		Enabled: enabled,
		Secret:  "whsec_" + hex.EncodeToString([]byte("0123456789abcdef")),
	}
	if err := store.CreateWebhook(context.Background(), w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}
	return w
}

// capture is an httptest receiver that records every delivery it sees.
type capture struct {
	srv      *httptest.Server
	requests chan capturedRequest
	status   atomic.Int32
}

type capturedRequest struct {
	body   []byte
	header http.Header
}

func newCapture(t *testing.T) *capture {
	t.Helper()
	c := &capture{requests: make(chan capturedRequest, 16)}
	c.status.Store(http.StatusOK)
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.requests <- capturedRequest{body: body, header: r.Header.Clone()}
		w.WriteHeader(int(c.status.Load()))
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *capture) wait(t *testing.T, timeout time.Duration) capturedRequest {
	t.Helper()
	select {
	case req := <-c.requests:
		return req
	case <-time.After(timeout):
		t.Fatal("timed out waiting for delivery")
		return capturedRequest{}
	}
}

// waitFor polls cond until it holds or the deadline passes. Delivery
// accounting is written after the HTTP exchange finishes, so tests poll
// rather than assume ordering.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchFanout(t *testing.T) {
	d, store := newTestDispatcher(t, 2, 16)

	subscribed := newCapture(t)
	disabled := newCapture(t)
	otherEvent := newCapture(t)

	mustCreateWebhook(t, store, subscribed.srv.URL, []string{model.EventRoomCreated}, true)
	mustCreateWebhook(t, store, disabled.srv.URL, []string{model.EventRoomCreated}, false)
	mustCreateWebhook(t, store, otherEvent.srv.URL, []string{model.EventRoomDeleted}, true)

	d.Dispatch(context.Background(), model.EventRoomCreated, map[string]interface{}{"room": "standup"})

	subscribed.wait(t, 2*time.Second)

	// Give stray deliveries a moment to surface before asserting absence.
	time.Sleep(100 * time.Millisecond)
	if len(disabled.requests) != 0 {
		t.Error("disabled webhook received a delivery")
	}
	if len(otherEvent.requests) != 0 {
		t.Error("webhook received a delivery for an event it is not subscribed to")
	}
}

func TestDeliverySignatureAndHeaders(t *testing.T) {
	d, store := newTestDispatcher(t, 1, 16)

	c := newCapture(t)
	w := mustCreateWebhook(t, store, c.srv.URL, []string{model.EventParticipantJoined}, true)

	d.Dispatch(context.Background(), model.EventParticipantJoined, map[string]interface{}{
		"room":        "standup",
		"participant": "alice-123",
	})

	req := c.wait(t, 2*time.Second)

	mac := hmac.New(sha256.New, []byte(w.Secret))
	mac.Write(req.body)
	want := hex.EncodeToString(mac.Sum(nil))
	if got := req.header.Get(HeaderSignature); got != want {
		t.Errorf("signature = %q, want HMAC of raw body %q", got, want)
	}
	if got := req.header.Get(HeaderEvent); got != model.EventParticipantJoined {
		t.Errorf("event header = %q, want %q", got, model.EventParticipantJoined)
	}
	if got := req.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.ID == "" || payload.ID != req.header.Get(HeaderPayloadID) {
		t.Errorf("payload id %q does not match header %q", payload.ID, req.header.Get(HeaderPayloadID))
	}
	if payload.Type != model.EventParticipantJoined {
		t.Errorf("payload type = %q", payload.Type)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Errorf("payload timestamp %q is not RFC 3339: %v", payload.Timestamp, err)
	}
	if payload.Data["room"] != "standup" {
		t.Errorf("payload data = %v", payload.Data)
	}
}

func TestDispatchSharesPayloadAcrossSubscribers(t *testing.T) {
	d, store := newTestDispatcher(t, 2, 16)

	first := newCapture(t)
	second := newCapture(t)
	mustCreateWebhook(t, store, first.srv.URL, []string{model.EventRoomDeleted}, true)
	mustCreateWebhook(t, store, second.srv.URL, []string{model.EventRoomDeleted}, true)

	d.Dispatch(context.Background(), model.EventRoomDeleted, map[string]interface{}{"room": "standup"})

	a := first.wait(t, 2*time.Second)
	b := second.wait(t, 2*time.Second)

	if string(a.body) != string(b.body) {
		t.Errorf("subscribers received different bodies:\n%s\n%s", a.body, b.body)
	}
	if a.header.Get(HeaderPayloadID) != b.header.Get(HeaderPayloadID) {
		t.Errorf("subscribers received different payload ids: %q vs %q",
			a.header.Get(HeaderPayloadID), b.header.Get(HeaderPayloadID))
	}
	// Same payload, but each delivery is signed with its own secret; both
	// hooks here share a secret so the signatures must also agree.
	if a.header.Get(HeaderSignature) != b.header.Get(HeaderSignature) {
		t.Errorf("signatures differ for identical body and secret")
	}
}

func TestDeliveryFailureAccounting(t *testing.T) {
	d, store := newTestDispatcher(t, 1, 16)
	ctx := context.Background()

	c := newCapture(t)
	c.status.Store(http.StatusInternalServerError)
	w := mustCreateWebhook(t, store, c.srv.URL, []string{model.EventRoomCreated}, true)

	d.Dispatch(ctx, model.EventRoomCreated, nil)
	c.wait(t, 2*time.Second)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.GetWebhook(ctx, w.ID)
		return err == nil && got.FailureCount == 1 && got.LastTriggeredAt != nil
	})

	d.Dispatch(ctx, model.EventRoomCreated, nil)
	c.wait(t, 2*time.Second)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.GetWebhook(ctx, w.ID)
		return err == nil && got.FailureCount == 2
	})

	// A success resets the counter instead of decrementing it.
	c.status.Store(http.StatusNoContent)
	d.Dispatch(ctx, model.EventRoomCreated, nil)
	c.wait(t, 2*time.Second)

	waitFor(t, 2*time.Second, func() bool {
		got, err := store.GetWebhook(ctx, w.ID)
		return err == nil && got.FailureCount == 0
	})
}

func TestTestDeliverySuccess(t *testing.T) {
	d, store := newTestDispatcher(t, 1, 16)
	ctx := context.Background()

	c := newCapture(t)
	w := mustCreateWebhook(t, store, c.srv.URL, []string{model.EventRoomCreated}, true)

	res := d.TestDelivery(ctx, w)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if res.LatencyMs < 0 {
		t.Errorf("latency = %f", res.LatencyMs)
	}

	req := c.wait(t, 2*time.Second)
	if got := req.header.Get(HeaderEvent); got != model.EventTest {
		t.Errorf("event header = %q, want %q", got, model.EventTest)
	}

	// Test sends update delivery accounting like real ones.
	got, err := store.GetWebhook(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if got.LastTriggeredAt == nil {
		t.Error("expected LastTriggeredAt to be set after a test delivery")
	}
	if got.FailureCount != 0 {
		t.Errorf("failure count = %d, want 0", got.FailureCount)
	}
}

func TestTestDeliveryTransportError(t *testing.T) {
	d, store := newTestDispatcher(t, 1, 16)
	ctx := context.Background()

	// A server that is already closed yields a connection error, not a status.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	w := mustCreateWebhook(t, store, url, []string{model.EventRoomCreated}, true)

	res := d.TestDelivery(ctx, w)
	if res.Success {
		t.Fatal("expected failure for unreachable endpoint")
	}
	if res.StatusCode != 0 {
		t.Errorf("status = %d, want 0 for transport error", res.StatusCode)
	}
	if res.Error == "" {
		t.Error("expected error detail for transport failure")
	}

	got, err := store.GetWebhook(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if got.FailureCount != 1 {
		t.Errorf("failure count = %d, want 1", got.FailureCount)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		delivered.Add(1)
	}))
	defer srv.Close()

	mustCreateWebhook(t, store, srv.URL, []string{model.EventRoomCreated}, true)

	d := New(store, 2, 16, discardLogger())
	d.Start()

	for i := 0; i < 6; i++ {
		d.Dispatch(context.Background(), model.EventRoomCreated, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := delivered.Load(); n != 6 {
		t.Errorf("delivered %d of 6 queued deliveries before shutdown returned", n)
	}
}

func TestShutdownAbandonsOnDeadline(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	mustCreateWebhook(t, store, srv.URL, []string{model.EventRoomCreated}, true)

	d := New(store, 1, 16, discardLogger())
	d.Start()
	d.Dispatch(context.Background(), model.EventRoomCreated, nil)

	// Let the worker pick the job up before asking for shutdown.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = d.Shutdown(ctx)
	if err == nil {
		t.Fatal("expected deadline error from Shutdown")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v after its deadline expired", elapsed)
	}
}

func TestDispatchAfterShutdown(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	c := newCapture(t)
	mustCreateWebhook(t, store, c.srv.URL, []string{model.EventRoomCreated}, true)

	d := New(store, 1, 16, discardLogger())
	d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Dispatch after shutdown drops silently instead of panicking.
	d.Dispatch(context.Background(), model.EventRoomCreated, nil)

	time.Sleep(50 * time.Millisecond)
	if len(c.requests) != 0 {
		t.Error("delivery went out after shutdown")
	}
}

func TestSign(t *testing.T) {
	body := []byte(`{"id":"1","type":"test"}`)
	secret := "whsec_secret"

	sig := Sign(secret, body)
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64 hex characters", len(sig))
	}
	if _, err := hex.DecodeString(sig); err != nil {
		t.Errorf("signature %q is not hex: %v", sig, err)
	}
	if Sign(secret, []byte(`{"id":"2","type":"test"}`)) == sig {
		t.Error("different bodies must not share a signature")
	}
	if Sign("whsec_other", body) == sig {
		t.Error("different secrets must not share a signature")
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/dispatch"
	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/service"
	"github.com/foyerhq/foyer/internal/sfu"
)

const (
	testPassword  = "supersecretpassword"
	testAPIKey    = "devkey"
	testAPISecret = "devsecret-devsecret-devsecret"
)

// fakeSFU is an in-memory media server for handler tests.
type fakeSFU struct {
	mu      sync.Mutex
	rooms   map[string]*sfu.Room
	deleted []string

	stateErr  error
	listErr   error
	deleteErr error
}

func newFakeSFU() *fakeSFU {
	return &fakeSFU{rooms: make(map[string]*sfu.Room)}
}

func (f *fakeSFU) RoomState(ctx context.Context, name string) (*sfu.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	room, ok := f.rooms[name]
	if !ok {
		return nil, sfu.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeSFU) ListRooms(ctx context.Context) ([]sfu.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]sfu.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeSFU) DeleteRoom(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rooms[name]; !ok {
		return sfu.ErrRoomNotFound
	}
	delete(f.rooms, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeSFU) setRoom(name string, participants int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[name] = &sfu.Room{Name: name, NumParticipants: participants}
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store      *config.Store
	authSvc    *service.AuthService
	meetingSvc *service.MeetingService
	dispatcher *dispatch.Dispatcher
	sfu        *fakeSFU
	router     chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config store,
// a running dispatcher, a fake media server, and a Chi router with routes
// mounted (no auth middleware).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatcher := dispatch.New(store, 2, 64, logger)
	dispatcher.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dispatcher.Shutdown(ctx)
	})

	fake := newFakeSFU()
	authSvc := service.NewAuthService(store)
	meetingSvc := service.NewMeetingService(store, fake, dispatcher, testAPIKey, testAPISecret, logger)

	adminHandler := NewAdminHandler(authSvc, meetingSvc)
	webhookHandler := NewWebhookHandler(store, dispatcher)
	meetingHandler := NewMeetingHandler(meetingSvc)

	// Mount routes without auth middleware for direct handler testing.
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/token", meetingHandler.IssueToken)
		r.Post("/end-meeting", meetingHandler.EndMeeting)

		r.Post("/admin/login", adminHandler.Login)
		r.Post("/admin/logout", adminHandler.Logout)

		r.Get("/admin/stats", adminHandler.Stats)
		r.Get("/admin/rooms", adminHandler.ListRooms)
		r.Put("/admin/rooms/{roomName}", adminHandler.UpdateRoomMetadata)

		r.Get("/admin/api-keys", adminHandler.ListAPIKeys)
		r.Post("/admin/api-keys", adminHandler.CreateAPIKey)
		r.Delete("/admin/api-keys/{keyID}", adminHandler.RevokeAPIKey)

		r.Get("/admin/webhooks", webhookHandler.ListWebhooks)
		r.Post("/admin/webhooks", webhookHandler.CreateWebhook)
		r.Get("/admin/webhooks/{webhookID}", webhookHandler.GetWebhook)
		r.Put("/admin/webhooks/{webhookID}", webhookHandler.UpdateWebhook)
		r.Delete("/admin/webhooks/{webhookID}", webhookHandler.DeleteWebhook)
		r.Post("/admin/webhooks/{webhookID}/test", webhookHandler.TestWebhook)
	})

	return &testEnv{
		store:      store,
		authSvc:    authSvc,
		meetingSvc: meetingSvc,
		dispatcher: dispatcher,
		sfu:        fake,
		router:     r,
	}
}

// seedWebhook creates a webhook subscription directly in the store.
func (e *testEnv) seedWebhook(t *testing.T, url string, events []string, enabled bool) *model.Webhook {
	t.Helper()
	secret, err := service.NewWebhookSecret()
	if err != nil {
		t.Fatalf("NewWebhookSecret: %v", err)
	}
	hook := &model.Webhook{
		ID:      uuid.NewString(),
		Name:    "hook-" + uuid.NewString()[:8],
		URL:     url,
		Events:  events,
		Enabled: enabled,
		Secret:  secret,
	}
	if err := e.store.CreateWebhook(context.Background(), hook); err != nil {
		t.Fatalf("seedWebhook: %v", err)
	}
	return hook
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// newTestClient starts a stub media server and returns a client pointed at
// it. The stub verifies every request carries a management token signed
// with the shared secret before invoking handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			t.Error("request missing bearer token")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var claims tokenClaims
		if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return []byte("apisecret"), nil
		}); err != nil {
			t.Errorf("management token does not verify: %v", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !claims.Video.RoomAdmin {
			t.Error("management token should carry the roomAdmin grant")
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHTTPClient(srv.URL, "apikey", "apisecret", logger)
}

func TestRoomState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rooms/standup" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(Room{Name: "standup", NumParticipants: 3})
	})

	room, err := client.RoomState(context.Background(), "standup")
	if err != nil {
		t.Fatalf("RoomState: %v", err)
	}
	if room.Name != "standup" || room.NumParticipants != 3 {
		t.Errorf("got %+v, want standup with 3 participants", room)
	}
}

func TestRoomStateNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.RoomState(context.Background(), "ghost")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomStateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.RoomState(context.Background(), "standup")
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if errors.Is(err, ErrRoomNotFound) {
		t.Error("server errors must not masquerade as room-not-found")
	}
}

func TestListRooms(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rooms": []Room{
				{Name: "a", NumParticipants: 1},
				{Name: "b", NumParticipants: 0},
			},
		})
	})

	rooms, err := client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rooms))
	}
	if rooms[0].Name != "a" {
		t.Errorf("got first room %q, want %q", rooms[0].Name, "a")
	}
}

func TestDeleteRoom(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	if err := client.DeleteRoom(context.Background(), "standup"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/rooms/standup" {
		t.Errorf("got %s %s, want DELETE /rooms/standup", gotMethod, gotPath)
	}
}

func TestDeleteRoomNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if err := client.DeleteRoom(context.Background(), "ghost"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestDeleteRoomServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if err := client.DeleteRoom(context.Background(), "standup"); err == nil {
		t.Fatal("expected error on 500")
	}
}

// Package sfu talks to the external media server that hosts the actual
// WebRTC rooms. Foyer never touches media: it reads room state, tears rooms
// down, and mints join tokens in the server's access-token format. Room
// lifecycle on the wire (track negotiation, simulcast, clustering) is the
// media server's business entirely.
package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// requestTimeout bounds every call to the media server so a stalled SFU
// cannot hang a join request.
const requestTimeout = 5 * time.Second

// ErrRoomNotFound is returned when the media server has no room by the
// requested name.
var ErrRoomNotFound = errors.New("room not found")

// Room is the media server's view of a live room.
type Room struct {
	Name            string `json:"name"`
	NumParticipants int    `json:"num_participants"`
	CreatedAt       int64  `json:"creation_time"`
}

// Client is the surface of the media server that Foyer depends on.
type Client interface {
	// RoomState returns the named room's live state, or ErrRoomNotFound.
	RoomState(ctx context.Context, name string) (*Room, error)
	// ListRooms returns every live room.
	ListRooms(ctx context.Context) ([]Room, error)
	// DeleteRoom tears the room down for all connected participants.
	DeleteRoom(ctx context.Context, name string) error
}

// HTTPClient implements Client against the media server's room REST API.
// Requests authenticate with a short-lived management token minted from the
// same key pair used for join tokens.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPClient creates a media server client. baseURL is the server's HTTP
// endpoint without a trailing slash.
func NewHTTPClient(baseURL, apiKey, apiSecret string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: requestTimeout},
		logger:    logger,
	}
}

// managementToken mints a one-minute admin-scoped token for a control call.
func (c *HTTPClient) managementToken() (string, error) {
	return NewAccessToken(c.apiKey, c.apiSecret).
		SetIdentity("foyer-control").
		SetVideoGrant(VideoGrant{RoomAdmin: true, RoomList: true}).
		SetValidFor(time.Minute).
		ToJWT()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	token, err := c.managementToken()
	if err != nil {
		return nil, fmt.Errorf("mint management token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// RoomState returns the named room's live state.
func (c *HTTPClient) RoomState(ctx context.Context, name string) (*Room, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query room state: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var room Room
		if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
			return nil, fmt.Errorf("decode room state: %w", err)
		}
		return &room, nil
	case http.StatusNotFound:
		return nil, ErrRoomNotFound
	default:
		return nil, fmt.Errorf("query room state: media server returned %d", resp.StatusCode)
	}
}

// ListRooms returns every live room on the media server.
func (c *HTTPClient) ListRooms(ctx context.Context) ([]Room, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rooms")
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: media server returned %d", resp.StatusCode)
	}

	var body struct {
		Rooms []Room `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode room list: %w", err)
	}
	return body.Rooms, nil
}

// DeleteRoom tears the room down for all connected participants.
func (c *HTTPClient) DeleteRoom(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(name))
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrRoomNotFound
	default:
		c.logger.Warn("media server rejected room deletion",
			"room", name, "status", resp.StatusCode)
		return fmt.Errorf("delete room: media server returned %d", resp.StatusCode)
	}
}

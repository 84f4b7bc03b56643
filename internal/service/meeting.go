package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/sfu"
)

// maxRoomNameLength bounds sanitized room names.
const maxRoomNameLength = 50

var (
	ErrInvalidRoomName     = errors.New("room name is empty or invalid")
	ErrParticipantRequired = errors.New("participant name is required")
)

// EventDispatcher receives the domain events the façade emits. Dispatch
// must not block on delivery.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event string, data map[string]interface{})
}

// JoinGrant is the outcome of a successful token issuance.
type JoinGrant struct {
	Token    string
	Identity string
	RoomName string
	IsHost   bool
}

// MeetingService orchestrates join-token issuance and meeting teardown
// against the external media server, emitting domain events along the way.
// It holds no room state of its own; liveness is re-derived from the media
// server on every call.
type MeetingService struct {
	store      *config.Store
	client     sfu.Client
	dispatcher EventDispatcher
	apiKey     string
	apiSecret  string
	logger     *slog.Logger
}

func NewMeetingService(store *config.Store, client sfu.Client, dispatcher EventDispatcher, apiKey, apiSecret string, logger *slog.Logger) *MeetingService {
	return &MeetingService{
		store:      store,
		client:     client,
		dispatcher: dispatcher,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     logger,
	}
}

// IssueJoinToken decides the grant for one participant and signs it. The
// first participant into a room, or anyone joining an empty one, becomes
// host and receives the room-admin capability. A "room created" event is
// emitted when the room did not previously exist, and "participant joined"
// is emitted on every grant, both before the token is returned.
func (s *MeetingService) IssueJoinToken(ctx context.Context, roomName, participantName, deviceID string) (*JoinGrant, error) {
	room, err := sanitizeRoomName(roomName)
	if err != nil {
		return nil, err
	}
	participantName = strings.TrimSpace(participantName)
	if participantName == "" {
		return nil, ErrParticipantRequired
	}

	// The same device re-joining keeps its identity; without a device id a
	// timestamp keeps concurrent joins from colliding.
	identity := fmt.Sprintf("%s-%d", participantName, time.Now().Unix())
	if deviceID != "" {
		identity = participantName + "-" + deviceID
	}

	isHost, newRoom := false, false
	state, err := s.client.RoomState(ctx, room)
	switch {
	case errors.Is(err, sfu.ErrRoomNotFound):
		isHost, newRoom = true, true
	case err != nil:
		// Availability over strictness: an unreachable media server must
		// not lock everyone out of their meetings.
		s.logger.Warn("room state query failed; granting host", "room", room, "error", err)
		isHost, newRoom = true, true
	case state.NumParticipants == 0:
		isHost = true
	}

	canPublish, canSubscribe := true, true
	token, err := sfu.NewAccessToken(s.apiKey, s.apiSecret).
		SetIdentity(identity).
		SetVideoGrant(sfu.VideoGrant{
			Room:         room,
			RoomJoin:     true,
			RoomAdmin:    isHost,
			CanPublish:   &canPublish,
			CanSubscribe: &canSubscribe,
		}).
		ToJWT()
	if err != nil {
		return nil, fmt.Errorf("sign join token: %w", err)
	}

	if newRoom {
		s.dispatcher.Dispatch(ctx, model.EventRoomCreated, map[string]interface{}{
			"room": room,
		})
	}
	s.dispatcher.Dispatch(ctx, model.EventParticipantJoined, map[string]interface{}{
		"room":             room,
		"participant":      identity,
		"participant_name": participantName,
		"is_host":          isHost,
	})

	return &JoinGrant{Token: token, Identity: identity, RoomName: room, IsHost: isHost}, nil
}

// EndMeeting tears the room down for every participant. Media server
// failures surface to the caller unchanged; the "room deleted" event is
// only emitted once the teardown succeeded.
func (s *MeetingService) EndMeeting(ctx context.Context, roomName, endedBy string) error {
	room, err := sanitizeRoomName(roomName)
	if err != nil {
		return err
	}

	if err := s.client.DeleteRoom(ctx, room); err != nil {
		return fmt.Errorf("end meeting %q: %w", room, err)
	}

	s.dispatcher.Dispatch(ctx, model.EventRoomDeleted, map[string]interface{}{
		"room":     room,
		"ended_by": endedBy,
	})
	return nil
}

// Rooms lists live rooms decorated with stored display names. An upstream
// failure yields an empty list rather than an error so the admin dashboard
// stays usable through a media server blip.
func (s *MeetingService) Rooms(ctx context.Context) []model.RoomInfo {
	rooms, err := s.client.ListRooms(ctx)
	if err != nil {
		s.logger.Warn("room listing failed; reporting none", "error", err)
		return []model.RoomInfo{}
	}

	meta, err := s.store.ListRoomMetadata(ctx)
	if err != nil {
		s.logger.Warn("room metadata load failed", "error", err)
	}

	out := make([]model.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info := model.RoomInfo{
			Name:            r.Name,
			NumParticipants: r.NumParticipants,
			CreatedAt:       r.CreatedAt,
		}
		if m, ok := meta[r.Name]; ok {
			info.DisplayName = m.DisplayName
		}
		out = append(out, info)
	}
	return out
}

// Stats aggregates the dashboard counters. Media server counters read as
// zero when it is unreachable; store counters are authoritative and their
// failures propagate.
func (s *MeetingService) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats

	rooms, err := s.client.ListRooms(ctx)
	if err != nil {
		s.logger.Warn("room listing failed; reporting zero rooms", "error", err)
	} else {
		stats.Rooms = len(rooms)
		for _, r := range rooms {
			stats.Participants += r.NumParticipants
		}
	}

	if stats.APIKeys, err = s.store.CountAPIKeys(ctx); err != nil {
		return stats, err
	}
	if stats.Webhooks, err = s.store.CountWebhooks(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// SetRoomDisplayName upserts the display-name overlay for a room. The room
// does not need to be live; metadata may be written ahead of first join.
func (s *MeetingService) SetRoomDisplayName(ctx context.Context, roomName, displayName string) (*model.RoomMetadata, error) {
	room, err := sanitizeRoomName(roomName)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrNameRequired
	}
	if len(displayName) > model.MaxNameLength {
		return nil, ErrNameTooLong
	}

	meta := &model.RoomMetadata{RoomName: room, DisplayName: displayName}
	if err := s.store.UpsertRoomMetadata(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// sanitizeRoomName keeps letters, digits, hyphen, and underscore from the
// input, truncates the survivors to maxRoomNameLength, and rejects names
// with nothing left.
func sanitizeRoomName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxRoomNameLength {
			break
		}
	}
	out := b.String()
	if out == "" {
		return "", ErrInvalidRoomName
	}
	return out, nil
}

package handler

import (
	"errors"
	"net/http"

	"github.com/foyerhq/foyer/internal/service"
	"github.com/foyerhq/foyer/internal/sfu"
)

// MeetingHandler serves the public meeting endpoints: join-token issuance
// and meeting termination.
type MeetingHandler struct {
	svc *service.MeetingService
}

// NewMeetingHandler creates a new MeetingHandler.
func NewMeetingHandler(svc *service.MeetingService) *MeetingHandler {
	return &MeetingHandler{svc: svc}
}

// issueTokenRequest is the expected payload for IssueToken.
type issueTokenRequest struct {
	RoomName        string `json:"room_name"`
	ParticipantName string `json:"participant_name"`
	DeviceID        string `json:"device_id,omitempty"`
}

// issueTokenResponse is the response payload for a successful join grant.
type issueTokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	RoomName string `json:"room_name"`
	IsHost   bool   `json:"is_host"`
}

// IssueToken grants a signed join token for a room, electing the caller host
// when the room is new or empty.
// POST /api/token
func (h *MeetingHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	grant, err := h.svc.IssueJoinToken(r.Context(), req.RoomName, req.ParticipantName, req.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRoomName):
			writeError(w, http.StatusBadRequest, "Invalid room name")
		case errors.Is(err, service.ErrParticipantRequired):
			writeError(w, http.StatusBadRequest, "Participant name is required")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, issueTokenResponse{
		Token:    grant.Token,
		Identity: grant.Identity,
		RoomName: grant.RoomName,
		IsHost:   grant.IsHost,
	})
}

// endMeetingRequest is the expected payload for EndMeeting.
type endMeetingRequest struct {
	RoomName string `json:"room_name"`
	Identity string `json:"identity,omitempty"`
}

// EndMeeting tears down a room for all participants. A media server failure
// fails the request; there is no partial success.
// POST /api/end-meeting
func (h *MeetingHandler) EndMeeting(w http.ResponseWriter, r *http.Request) {
	var req endMeetingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.svc.EndMeeting(r.Context(), req.RoomName, req.Identity); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRoomName):
			writeError(w, http.StatusBadRequest, "Invalid room name")
		case errors.Is(err, sfu.ErrRoomNotFound):
			writeError(w, http.StatusNotFound, "Room not found")
		default:
			writeError(w, http.StatusBadGateway, "Failed to end meeting: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Meeting ended",
	})
}

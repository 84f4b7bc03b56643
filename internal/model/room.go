package model

import "time"

// RoomMetadata overlays a human-readable display name on a room's technical
// code. Entries are written by explicit admin update and are not removed
// when the underlying room ends; consumers re-verify room existence against
// the media server before trusting an entry.
type RoomMetadata struct {
	RoomName    string    `json:"room_name" db:"room_name"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// RoomInfo is a live room as reported by the media server, decorated with
// the stored display name when one exists.
type RoomInfo struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name,omitempty"`
	NumParticipants int    `json:"num_participants"`
	CreatedAt       int64  `json:"created_at,omitempty"`
}

// Stats is the admin dashboard counter set. Room and participant figures
// come from the media server and read as zero when it is unreachable.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	APIKeys      int `json:"api_keys"`
	Webhooks     int `json:"webhooks"`
}

// Package videocall manages call session lifecycle, participant membership
// and the exclusive screen-sharing slot.
package videocall

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeOneOnOne     = "one_on_one"
	TypeGroup        = "group"
	TypeConsultation = "consultation"
	TypeEmergency    = "emergency"
)

const (
	StatusScheduled  = "scheduled"
	StatusInitiated  = "initiated"
	StatusInProgress = "in_progress"
	StatusEnded      = "ended"
)

const (
	ParticipantInvited = "invited"
	ParticipantJoined  = "joined"
	ParticipantLeft    = "left"
)

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
)

var validCallTypes = map[string]bool{
	TypeOneOnOne:     true,
	TypeGroup:        true,
	TypeConsultation: true,
	TypeEmergency:    true,
}

// CallSettings is persisted as JSONB. Key names are part of the stored shape
// and must not change.
type CallSettings struct {
	IsRecordingEnabled     bool   `json:"isRecordingEnabled"`
	IsScreenSharingEnabled bool   `json:"isScreenSharingEnabled"`
	MaxParticipants        int    `json:"maxParticipants"`
	Quality                string `json:"quality"`
}

// DefaultCallSettings returns the settings applied to new calls.
func DefaultCallSettings() CallSettings {
	return CallSettings{
		IsRecordingEnabled:     false,
		IsScreenSharingEnabled: true,
		MaxParticipants:        16,
		Quality:                "hd",
	}
}

// VideoCall is one call session. Status only moves forward:
// scheduled|initiated -> in_progress -> ended.
type VideoCall struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	CallID          string       `db:"call_id" json:"call_id"`
	RoomID          string       `db:"room_id" json:"room_id"`
	InitiatorID     uuid.UUID    `db:"initiator_id" json:"initiator_id"`
	Type            string       `db:"type" json:"type"`
	Title           string       `db:"title" json:"title"`
	Status          string       `db:"status" json:"status"`
	ScheduledAt     *time.Time   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	DurationMinutes int          `db:"duration_minutes" json:"duration_minutes"`
	Settings        CallSettings `db:"settings" json:"settings"`
	StartedAt       *time.Time   `db:"started_at" json:"started_at,omitempty"`
	EndedAt         *time.Time   `db:"ended_at" json:"ended_at,omitempty"`
	EndedBy         *uuid.UUID   `db:"ended_by" json:"ended_by,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// IsJoinable reports whether new joins are still accepted.
func (c *VideoCall) IsJoinable() bool {
	return c.Status != StatusEnded
}

// CallParticipant is a (call, user) membership row. At most one participant
// per call holds is_screen_sharing=true at any time.
type CallParticipant struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	CallID                 uuid.UUID  `db:"call_id" json:"call_id"`
	UserID                 uuid.UUID  `db:"user_id" json:"user_id"`
	Status                 string     `db:"status" json:"status"`
	IsHost                 bool       `db:"is_host" json:"is_host"`
	JoinedAt               *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	LeftAt                 *time.Time `db:"left_at" json:"left_at,omitempty"`
	IsScreenSharing        bool       `db:"is_screen_sharing" json:"is_screen_sharing"`
	ScreenSharingStartedAt *time.Time `db:"screen_sharing_started_at" json:"screen_sharing_started_at,omitempty"`
	ScreenSharingStoppedAt *time.Time `db:"screen_sharing_stopped_at" json:"screen_sharing_stopped_at,omitempty"`
}

// SignalingConfig is the client-side connection bootstrap. Generating it has
// no side effects.
type SignalingConfig struct {
	RoomID      string      `json:"room_id"`
	ICEServers  []ICEServer `json:"ice_servers"`
	MediaConstraints
}

// ICEServer is one STUN or TURN entry handed to the client.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// MediaConstraints carries the capture parameters matching the call quality.
type MediaConstraints struct {
	Audio      bool   `json:"audio"`
	Video      bool   `json:"video"`
	VideoWidth int    `json:"video_width"`
	FrameRate  int    `json:"frame_rate"`
	Quality    string `json:"quality"`
}

// ScreenShareStatus reports the call's screen-share slot from one
// participant's point of view.
type ScreenShareStatus struct {
	CurrentSharerID   *uuid.UUID `json:"current_sharer_id,omitempty"`
	CurrentSharerName string     `json:"current_sharer_name,omitempty"`
	CanStart          bool       `json:"can_start"`
}

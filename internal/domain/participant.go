package domain

import "encoding/json"

type Role string

const (
	RoleProfessor Role = "professor"
	RoleStudent   Role = "student"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleProfessor, RoleStudent, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// CanModerate - кому разрешено мьютить и выбирать говорящих
func (r Role) CanModerate() bool {
	return r == RoleProfessor || r == RoleAdmin
}

// Peer - живой хендл участника, который отдает транспорт.
// Флаги читаются в момент вызова, кэшировать их нельзя.
type Peer interface {
	Identity() string
	Name() string
	Metadata() string
	IsMicrophoneEnabled() bool
	IsCameraEnabled() bool
	IsScreenShareEnabled() bool
	IsSpeaking() bool
}

// PeerMetadata - JSON в metadata участника
type PeerMetadata struct {
	Role   Role   `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ParsePeerMetadata never fails: malformed metadata yields the zero value.
func ParsePeerMetadata(raw string) PeerMetadata {
	var md PeerMetadata
	if raw == "" {
		return md
	}

	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return PeerMetadata{}
	}

	if _, ok := ParseRole(string(md.Role)); !ok {
		md.Role = ""
	}

	return md
}

// ModerationFlags - локальное состояние модерации поверх транспорта
type ModerationFlags struct {
	Muted      bool `json:"muted"`
	Picked     bool `json:"picked"`
	HandRaised bool `json:"hand_raised"`
}

// ParticipantViewModel выводится из транспорта на каждое событие и никогда не меняется на месте.
type ParticipantViewModel struct {
	ID              string            `json:"id"`
	DisplayName     string            `json:"display_name"`
	Avatar          string            `json:"avatar,omitempty"`
	IsLocal         bool              `json:"is_local"`
	Role            Role              `json:"role"`
	IsMuted         bool              `json:"is_muted"`
	IsCameraOn      bool              `json:"is_camera_on"`
	IsScreenSharing bool              `json:"is_screen_sharing"`
	IsSpeaking      bool              `json:"is_speaking"`
	HandRaised      bool              `json:"hand_raised"`
	IsPicked        bool              `json:"is_picked"`
	Quality         ConnectionQuality `json:"quality,omitempty"`
}

// RosterSnapshot - результат одного пересчета
type RosterSnapshot struct {
	Version      uint64                 `json:"version"`
	State        ConnectionState        `json:"state"`
	Participants []ParticipantViewModel `json:"participants"`
}

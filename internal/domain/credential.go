package domain

import "time"

// RoomCredential - короткоживущий доступ одного пользователя в одну комнату.
// Выдается внешним сервисом, используется один раз и не кэшируется между комнатами.
type RoomCredential struct {
	Token           string    `json:"token" validate:"required"`
	ServerURL       string    `json:"server_url" validate:"required,url"`
	IssuedForUserID string    `json:"issued_for_user_id" validate:"required"`
	IssuedForRoomID string    `json:"issued_for_room_id" validate:"required"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the credential is past its expiry. A zero ExpiresAt never expires.
func (c RoomCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// IsZero is true for the empty credential.
func (c RoomCredential) IsZero() bool {
	return c.Token == ""
}

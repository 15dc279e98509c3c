package domain

// SessionSnapshot - все, что видит слой отображения
type SessionSnapshot struct {
	UserID string          `json:"user_id"`
	RoomID string          `json:"room_id"`
	State  ConnectionState `json:"state"`
	Media  LocalMediaState `json:"media"`
	Roster RosterSnapshot  `json:"roster"`
}

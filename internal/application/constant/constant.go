package constant

// Ключи атрибутов slog
const (
	Error         = "error"
	UserID        = "user_id"
	UserName      = "user_name"
	RoomID        = "room_id"
	ParticipantID = "participant_id"
	State         = "state"
	Reason        = "reason"
	TrackID       = "track_id"
	TrackKind     = "track_kind"
	Device        = "device"
	Command       = "command"
	Attempt       = "attempt"
	Version       = "version"
	Count         = "count"
)

package domain

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventParticipantJoined
	EventParticipantLeft
	EventParticipantMetadataChanged
	EventTrackPublished
	EventTrackUnpublished
	EventTrackMuted
	EventActiveSpeakersChanged
	EventConnectionQualityChanged
	EventDataReceived
	EventReconnecting
	EventReconnected
	EventDisconnected
)

var eventKindNames = map[EventKind]string{
	EventConnected:                  "connected",
	EventParticipantJoined:          "participant_joined",
	EventParticipantLeft:            "participant_left",
	EventParticipantMetadataChanged: "participant_metadata_changed",
	EventTrackPublished:             "track_published",
	EventTrackUnpublished:           "track_unpublished",
	EventTrackMuted:                 "track_muted",
	EventActiveSpeakersChanged:      "active_speakers_changed",
	EventConnectionQualityChanged:   "connection_quality_changed",
	EventDataReceived:               "data_received",
	EventReconnecting:               "reconnecting",
	EventReconnected:                "reconnected",
	EventDisconnected:               "disconnected",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// AffectsRoster - data сообщения ростер не трогают
func (k EventKind) AffectsRoster() bool {
	return k != EventDataReceived
}

// Причины отключения
const (
	ReasonClientInitiated = "client initiated"
	ReasonServerShutdown  = "server shutdown"
	ReasonKicked          = "removed from room"
	ReasonNetworkLost     = "network lost"
	ReasonDuplicateJoin   = "duplicate identity"
)

// RoomEvent - событие транспорта. Заполнены только поля, относящиеся к Kind.
type RoomEvent struct {
	Kind          EventKind
	ParticipantID string
	TrackID       string
	TrackKind     TrackKind
	Quality       ConnectionQuality
	Reason        string
	Data          []byte
}

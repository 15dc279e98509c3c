package events

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Типы сигнальных сообщений
const (
	TypeJoin               = "join"
	TypeJoined             = "joined"
	TypeLeave              = "leave"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeCandidate          = "candidate"
	TypePublish            = "publish"
	TypeUnpublish          = "unpublish"
	TypeTrackState         = "track_state"
	TypeParticipantJoined  = "participant_joined"
	TypeParticipantLeft    = "participant_left"
	TypeParticipantUpdated = "participant_updated"
	TypeTrackPublished     = "track_published"
	TypeTrackUnpublished   = "track_unpublished"
	TypeSpeakers           = "speakers"
	TypeQuality            = "quality"
	TypeData               = "data"
	TypeError              = "error"
	TypeClose              = "close"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage упаковывает payload в конверт
func NewMessage(msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	return Message{Type: msgType, Data: data}, nil
}

// JoinEvent - вход в комнату по токену
type JoinEvent struct {
	Token string `json:"token"`
}

// TrackInfo - опубликованный трек участника
type TrackInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Muted  bool   `json:"muted"`
}

// ParticipantInfo - состояние участника, как его видит сервер
type ParticipantInfo struct {
	Identity string      `json:"identity"`
	Name     string      `json:"name"`
	Metadata string      `json:"metadata,omitempty"`
	Speaking bool        `json:"speaking,omitempty"`
	Tracks   []TrackInfo `json:"tracks,omitempty"`
}

// JoinedEvent - ответ на join: кто мы и кто уже в комнате
type JoinedEvent struct {
	Local        ParticipantInfo   `json:"local"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantLeftEvent struct {
	Identity string `json:"identity"`
}

type TrackEvent struct {
	Identity string    `json:"identity"`
	Track    TrackInfo `json:"track"`
}

// PublishEvent - клиент публикует или снимает трек
type PublishEvent struct {
	Track TrackInfo `json:"track"`
}

// TrackStateEvent - клиент меняет mute своего трека.
// Сервер рассылает изменение остальным как TrackEvent с тем же типом.
type TrackStateEvent struct {
	TrackID string `json:"track_id"`
	Muted   bool   `json:"muted"`
}

// SpeakersEvent - текущие активные говорящие
type SpeakersEvent struct {
	Identities []string `json:"identities"`
}

type QualityEvent struct {
	Identity string `json:"identity"`
	Quality  string `json:"quality"`
}

// DataEvent - произвольные данные между участниками, payload в base64
type DataEvent struct {
	Sender  string `json:"sender,omitempty"`
	Payload []byte `json:"payload"`
}

// SdpEvent - события связанные с SDP (offer, answer)
type SdpEvent struct {
	SDP string `json:"sdp"`
}

// IceCandidateEvent - ICE кандидаты
type IceCandidateEvent struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// CloseEvent - сервер завершает сессию
type CloseEvent struct {
	Reason string `json:"reason"`
}

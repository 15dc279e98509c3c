package dto

import (
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/LiveRoom/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ParticipantPath struct {
	ID string `param:"id" validate:"required,max=256"`
}

type MicrophoneAccessResponse struct {
	Granted bool                   `json:"granted"`
	Reason  string                 `json:"reason,omitempty"`
	Media   domain.LocalMediaState `json:"media"`
}

type MediaStateResponse struct {
	Media domain.LocalMediaState `json:"media"`
}

type ModerationResponse struct {
	ParticipantID string                 `json:"participant_id,omitempty"`
	Affected      int                    `json:"affected,omitempty"`
	Propagated    bool                   `json:"propagated"`
	Flags         domain.ModerationFlags `json:"flags"`
}

type IceServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

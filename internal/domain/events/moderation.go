package events

import (
	"encoding/json"
	"fmt"
)

type ModerationCommandType string

const (
	CommandMute      ModerationCommandType = "mute"
	CommandUnmute    ModerationCommandType = "unmute"
	CommandMuteAll   ModerationCommandType = "mute_all"
	CommandUnmuteAll ModerationCommandType = "unmute_all"
	CommandPick      ModerationCommandType = "pick"
	CommandUnpick    ModerationCommandType = "unpick"
	CommandGiveFloor ModerationCommandType = "give_floor"
	CommandRaiseHand ModerationCommandType = "raise_hand"
	CommandLowerHand ModerationCommandType = "lower_hand"

	CommandStopScreenShare ModerationCommandType = "stop_screen_share"
)

// RequiresModerator - команды, которые принимаются только от professor/admin
func (t ModerationCommandType) RequiresModerator() bool {
	switch t {
	case CommandRaiseHand, CommandLowerHand:
		return false
	default:
		return true
	}
}

// ModerationCommand ходит по data каналу транспорта.
// Для *_all TargetID пустой.
type ModerationCommand struct {
	Kind     string                `json:"kind"`
	Type     ModerationCommandType `json:"type"`
	TargetID string                `json:"target_id,omitempty"`
}

const moderationKind = "moderation"

func NewModerationCommand(t ModerationCommandType, targetID string) ModerationCommand {
	return ModerationCommand{Kind: moderationKind, Type: t, TargetID: targetID}
}

func (c ModerationCommand) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal moderation command: %w", err)
	}

	return data, nil
}

// DecodeModerationCommand returns ok=false for payloads that are not moderation commands.
func DecodeModerationCommand(data []byte) (ModerationCommand, bool) {
	var cmd ModerationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ModerationCommand{}, false
	}

	if cmd.Kind != moderationKind || cmd.Type == "" {
		return ModerationCommand{}, false
	}

	return cmd, true
}

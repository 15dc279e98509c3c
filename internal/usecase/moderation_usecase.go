package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/domain/events"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
)

const (
	directionOut = "out"
	directionIn  = "in"
)

// ModerationUsecase - намерения модерации поверх ростера.
//
// Флаги применяются локально всегда. Затем команда уходит по data каналу
// транспорта. Если канала нет, действие остается локальным: удаленный
// участник не замьючен на самом деле. Принимающая сторона исполняет команды
// модератора добровольно, сервер их не навязывает.
type ModerationUsecase interface {
	Mute(ctx context.Context, participantID string) error
	Unmute(ctx context.Context, participantID string) error
	MuteAll(ctx context.Context) (int, error)
	UnmuteAll(ctx context.Context) (int, error)

	Pick(ctx context.Context, participantID string) error
	Unpick(ctx context.Context, participantID string) error
	GiveFloor(ctx context.Context, participantID string) error

	StopScreenShare(ctx context.Context, participantID string) error
	AcknowledgeHand(ctx context.Context, participantID string) error

	RaiseHand(ctx context.Context) error
	LowerHand(ctx context.Context) error

	Flags(participantID string) domain.ModerationFlags
}

type moderationUsecase struct {
	conn  ConnectionUsecase
	flags memory.ModerationFlagsRepository
	media MediaUsecase
}

func NewModerationUsecase(
	conn ConnectionUsecase,
	flags memory.ModerationFlagsRepository,
	media MediaUsecase,
) ModerationUsecase {
	m := &moderationUsecase{
		conn:  conn,
		flags: flags,
		media: media,
	}

	conn.OnData(m.handleData)

	return m
}

func (m *moderationUsecase) Flags(participantID string) domain.ModerationFlags {
	return m.flags.Get(participantID)
}

func (m *moderationUsecase) Mute(ctx context.Context, participantID string) error {
	return m.moderateOne(ctx, participantID, events.CommandMute, func() bool {
		return m.flags.SetMuted(participantID, true)
	})
}

func (m *moderationUsecase) Unmute(ctx context.Context, participantID string) error {
	return m.moderateOne(ctx, participantID, events.CommandUnmute, func() bool {
		return m.flags.SetMuted(participantID, false)
	})
}

func (m *moderationUsecase) Pick(ctx context.Context, participantID string) error {
	return m.moderateOne(ctx, participantID, events.CommandPick, func() bool {
		return m.flags.SetPicked(participantID, true)
	})
}

func (m *moderationUsecase) Unpick(ctx context.Context, participantID string) error {
	return m.moderateOne(ctx, participantID, events.CommandUnpick, func() bool {
		return m.flags.SetPicked(participantID, false)
	})
}

// AcknowledgeHand опускает поднятую руку участника
func (m *moderationUsecase) AcknowledgeHand(ctx context.Context, participantID string) error {
	return m.moderateOne(ctx, participantID, events.CommandLowerHand, func() bool {
		return m.flags.SetHandRaised(participantID, false)
	})
}

// StopScreenShare не меняет локальных флагов: показ экрана читается из транспорта
func (m *moderationUsecase) StopScreenShare(ctx context.Context, participantID string) error {
	roster, local, err := m.moderator()
	if err != nil {
		return err
	}

	target, err := findTarget(roster, local, participantID)
	if err != nil {
		return err
	}

	if !target.IsScreenSharing {
		return nil
	}

	return m.propagate(ctx, events.NewModerationCommand(events.CommandStopScreenShare, participantID))
}

func (m *moderationUsecase) MuteAll(ctx context.Context) (int, error) {
	return m.moderateAll(ctx, events.CommandMuteAll, true)
}

func (m *moderationUsecase) UnmuteAll(ctx context.Context) (int, error) {
	return m.moderateAll(ctx, events.CommandUnmuteAll, false)
}

// GiveFloor выбирает участника говорящим и мьютит всех остальных удаленных
func (m *moderationUsecase) GiveFloor(ctx context.Context, participantID string) error {
	roster, local, err := m.moderator()
	if err != nil {
		return err
	}

	if _, err = findTarget(roster, local, participantID); err != nil {
		return err
	}

	others := remoteIDs(roster, participantID)

	changed := m.flags.SetPicked(participantID, true)
	changed = m.flags.SetMuted(participantID, false) || changed
	changed = m.flags.SetMutedMany(others, true) > 0 || changed

	if !changed {
		return nil
	}

	m.conn.Refresh()

	return m.propagate(ctx, events.NewModerationCommand(events.CommandGiveFloor, participantID))
}

func (m *moderationUsecase) RaiseHand(ctx context.Context) error {
	return m.setOwnHand(ctx, true)
}

func (m *moderationUsecase) LowerHand(ctx context.Context) error {
	return m.setOwnHand(ctx, false)
}

func (m *moderationUsecase) setOwnHand(ctx context.Context, raised bool) error {
	_, local, err := m.localParticipant()
	if err != nil {
		return err
	}

	if !m.flags.SetHandRaised(local.ID, raised) {
		return nil
	}

	m.conn.Refresh()

	cmd := events.CommandLowerHand
	if raised {
		cmd = events.CommandRaiseHand
	}

	return m.propagate(ctx, events.NewModerationCommand(cmd, local.ID))
}

func (m *moderationUsecase) moderateOne(
	ctx context.Context,
	participantID string,
	cmd events.ModerationCommandType,
	apply func() bool,
) error {
	roster, local, err := m.moderator()
	if err != nil {
		return err
	}

	if _, err = findTarget(roster, local, participantID); err != nil {
		return err
	}

	// Повтор того же действия ничего не пересчитывает и не отправляет
	if !apply() {
		return nil
	}

	m.conn.Refresh()

	return m.propagate(ctx, events.NewModerationCommand(cmd, participantID))
}

func (m *moderationUsecase) moderateAll(ctx context.Context, cmd events.ModerationCommandType, muted bool) (int, error) {
	roster, _, err := m.moderator()
	if err != nil {
		return 0, err
	}

	changed := m.flags.SetMutedMany(remoteIDs(roster), muted)
	if changed == 0 {
		return 0, nil
	}

	// Один пересчет на всю пачку
	m.conn.Refresh()

	return changed, m.propagate(ctx, events.NewModerationCommand(cmd, ""))
}

func (m *moderationUsecase) propagate(ctx context.Context, cmd events.ModerationCommand) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}

	err = m.conn.SendData(ctx, payload)

	switch {
	case err == nil:
		metric.RecordModerationCommand(string(cmd.Type), directionOut)
		return nil
	case errors.Is(err, domain.ErrDataChannelUnavailable):
		slog.Info(
			"moderation applied locally only",
			slog.String(constant.Command, string(cmd.Type)),
			slog.String(constant.ParticipantID, cmd.TargetID),
		)
		return fmt.Errorf("%w: %w", domain.ErrModerationNotPropagated, err)
	default:
		slog.Error(
			"moderation command not sent",
			slog.String(constant.Command, string(cmd.Type)),
			slog.String(constant.ParticipantID, cmd.TargetID),
			slog.Any(constant.Error, err),
		)
		return fmt.Errorf("%w: %w", domain.ErrModerationNotPropagated, err)
	}
}

// handleData исполняет команды, пришедшие от других участников
func (m *moderationUsecase) handleData(senderID string, payload []byte) {
	cmd, ok := events.DecodeModerationCommand(payload)
	if !ok {
		return
	}

	roster := m.conn.Roster()

	local, ok := lo.Find(roster, func(p domain.ParticipantViewModel) bool { return p.IsLocal })
	if !ok {
		return
	}

	sender, ok := lo.Find(roster, func(p domain.ParticipantViewModel) bool { return p.ID == senderID && !p.IsLocal })
	if !ok {
		slog.Warn("moderation command from unknown participant", slog.String(constant.ParticipantID, senderID))
		return
	}

	if cmd.Type.RequiresModerator() && !sender.Role.CanModerate() {
		slog.Warn(
			"moderation command rejected",
			slog.String(constant.ParticipantID, senderID),
			slog.String(constant.Command, string(cmd.Type)),
		)
		return
	}

	metric.RecordModerationCommand(string(cmd.Type), directionIn)

	if m.apply(cmd, sender, local, roster) {
		m.conn.Refresh()
	}
}

// apply возвращает true, если изменились флаги ростера
func (m *moderationUsecase) apply(
	cmd events.ModerationCommand,
	sender, local domain.ParticipantViewModel,
	roster []domain.ParticipantViewModel,
) bool {
	targetIsLocal := cmd.TargetID == local.ID

	switch cmd.Type {
	case events.CommandMute:
		if targetIsLocal {
			return m.media.ForceMute()
		}
		return m.flags.SetMuted(cmd.TargetID, true)

	case events.CommandUnmute:
		// Удаленно микрофон не включаем, только снимаем флаг
		if targetIsLocal {
			return false
		}
		return m.flags.SetMuted(cmd.TargetID, false)

	case events.CommandMuteAll:
		forced := m.media.ForceMute()
		return m.flags.SetMutedMany(remoteIDs(roster, sender.ID), true) > 0 || forced

	case events.CommandUnmuteAll:
		return m.flags.SetMutedMany(remoteIDs(roster), false) > 0

	case events.CommandPick:
		return m.flags.SetPicked(cmd.TargetID, true)

	case events.CommandUnpick:
		return m.flags.SetPicked(cmd.TargetID, false)

	case events.CommandGiveFloor:
		changed := m.flags.SetPicked(cmd.TargetID, true)
		if !targetIsLocal {
			changed = m.flags.SetMuted(cmd.TargetID, false) || changed
			changed = m.media.ForceMute() || changed
		}
		return m.flags.SetMutedMany(remoteIDs(roster, sender.ID, cmd.TargetID), true) > 0 || changed

	case events.CommandStopScreenShare:
		if targetIsLocal {
			return m.media.ForceStopScreenShare()
		}
		return false

	case events.CommandRaiseHand:
		return m.flags.SetHandRaised(sender.ID, true)

	case events.CommandLowerHand:
		target := lo.Ternary(cmd.TargetID == "", sender.ID, cmd.TargetID)
		// Чужую руку опускает только модератор
		if target != sender.ID && !sender.Role.CanModerate() {
			return false
		}
		return m.flags.SetHandRaised(target, false)
	}

	return false
}

func (m *moderationUsecase) localParticipant() ([]domain.ParticipantViewModel, domain.ParticipantViewModel, error) {
	roster := m.conn.Roster()

	local, ok := lo.Find(roster, func(p domain.ParticipantViewModel) bool { return p.IsLocal })
	if !ok {
		return nil, domain.ParticipantViewModel{}, domain.ErrNotConnected
	}

	return roster, local, nil
}

func (m *moderationUsecase) moderator() ([]domain.ParticipantViewModel, domain.ParticipantViewModel, error) {
	roster, local, err := m.localParticipant()
	if err != nil {
		return nil, local, err
	}

	if !local.Role.CanModerate() {
		return nil, local, domain.ErrNotPermitted
	}

	return roster, local, nil
}

func findTarget(roster []domain.ParticipantViewModel, local domain.ParticipantViewModel, id string) (domain.ParticipantViewModel, error) {
	if id == local.ID {
		return domain.ParticipantViewModel{}, domain.ErrCannotModerateSelf
	}

	target, ok := lo.Find(roster, func(p domain.ParticipantViewModel) bool { return p.ID == id })
	if !ok {
		return domain.ParticipantViewModel{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}

	return target, nil
}

// remoteIDs - все не локальные участники, кроме перечисленных
func remoteIDs(roster []domain.ParticipantViewModel, except ...string) []string {
	return lo.FilterMap(roster, func(p domain.ParticipantViewModel, _ int) (string, bool) {
		return p.ID, !p.IsLocal && !lo.Contains(except, p.ID)
	})
}

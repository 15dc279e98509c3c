package usecase_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/domain/events"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
)

// classroom заводит профессора и n говорящих студентов
func classroom(t *testing.T, n int, opts ...memory.TransportOption) (*testRoom, *testClient, []*testClient) {
	t.Helper()

	room := newTestRoom()
	prof := room.client(t, "prof", domain.RoleProfessor, opts...)
	prof.join(t)

	students := make([]*testClient, 0, n)
	for i := range n {
		s := room.client(t, fmt.Sprintf("s%d", i+1), domain.RoleStudent)
		s.join(t)
		s.speak(t)
		students = append(students, s)
	}

	waitRoster(t, prof, func(r []domain.ParticipantViewModel) bool {
		if len(r) != n+1 {
			return false
		}

		for _, p := range r[1:] {
			if p.IsMuted {
				return false
			}
		}

		return true
	})

	settle(t, prof)

	return room, prof, students
}

func Test_Moderation_mute_all_recomputes_once(t *testing.T) {
	// Arrange
	_, prof, _ := classroom(t, 5, memory.WithoutDataChannel())
	before := prof.conn.Snapshot().Version

	// Act
	affected, err := prof.moderation.MuteAll(context.Background())

	// Assert
	require.ErrorIs(t, err, domain.ErrModerationNotPropagated)
	require.Equal(t, 5, affected)
	require.Equal(t, before+1, prof.conn.Snapshot().Version)

	for _, p := range prof.conn.Roster()[1:] {
		require.True(t, p.IsMuted, p.ID)
	}

	// Повтор ничего не меняет
	affected, err = prof.moderation.MuteAll(context.Background())
	require.NoError(t, err)
	require.Zero(t, affected)
	require.Equal(t, before+1, prof.conn.Snapshot().Version)

	affected, err = prof.moderation.UnmuteAll(context.Background())
	require.ErrorIs(t, err, domain.ErrModerationNotPropagated)
	require.Equal(t, 5, affected)
	require.Equal(t, before+2, prof.conn.Snapshot().Version)
}

func Test_Moderation_single_actions_are_idempotent(t *testing.T) {
	_, prof, _ := classroom(t, 1, memory.WithoutDataChannel())

	// Без data канала команда применяется только локально
	require.ErrorIs(t, prof.moderation.Pick(context.Background(), "s1"), domain.ErrModerationNotPropagated)
	version := prof.conn.Snapshot().Version

	// Повтор ничего не меняет и ничего не отправляет
	require.NoError(t, prof.moderation.Pick(context.Background(), "s1"))
	require.Equal(t, version, prof.conn.Snapshot().Version)

	p, _ := prof.participant("s1")
	require.True(t, p.IsPicked)

	require.ErrorIs(t, prof.moderation.Unpick(context.Background(), "s1"), domain.ErrModerationNotPropagated)
	p, _ = prof.participant("s1")
	require.False(t, p.IsPicked)

	require.ErrorIs(t, prof.moderation.Mute(context.Background(), "s1"), domain.ErrModerationNotPropagated)
	version = prof.conn.Snapshot().Version
	require.NoError(t, prof.moderation.Mute(context.Background(), "s1"))
	require.Equal(t, version, prof.conn.Snapshot().Version)
	require.True(t, prof.moderation.Flags("s1").Muted)
}

func Test_Moderation_rejects_invalid_targets_and_roles(t *testing.T) {
	room, prof, students := classroom(t, 1)
	ctx := context.Background()

	require.ErrorIs(t, prof.moderation.Mute(ctx, "prof"), domain.ErrCannotModerateSelf)
	require.ErrorIs(t, prof.moderation.Mute(ctx, "ghost"), domain.ErrParticipantNotFound)
	require.ErrorIs(t, prof.moderation.GiveFloor(ctx, "ghost"), domain.ErrParticipantNotFound)

	require.ErrorIs(t, students[0].moderation.Mute(ctx, "prof"), domain.ErrNotPermitted)
	_, err := students[0].moderation.MuteAll(ctx)
	require.ErrorIs(t, err, domain.ErrNotPermitted)

	offline := room.client(t, "offline", domain.RoleProfessor)
	require.ErrorIs(t, offline.moderation.Mute(ctx, "s1"), domain.ErrNotConnected)
}

func Test_Moderation_mute_reaches_target_microphone(t *testing.T) {
	_, prof, students := classroom(t, 2)
	s1, s2 := students[0], students[1]

	require.NoError(t, prof.moderation.Mute(context.Background(), "s1"))

	p, _ := prof.participant("s1")
	require.True(t, p.IsMuted)

	require.Eventually(t, func() bool { return s1.media.State().IsMuted }, waitFor, tick)
	require.False(t, s2.media.State().IsMuted)

	waitRoster(t, s2, func([]domain.ParticipantViewModel) bool {
		p, ok := s2.participant("s1")
		return ok && p.IsMuted
	})
}

func Test_Moderation_without_data_channel_stays_local(t *testing.T) {
	_, prof, students := classroom(t, 1, memory.WithoutDataChannel())

	err := prof.moderation.Mute(context.Background(), "s1")
	require.ErrorIs(t, err, domain.ErrModerationNotPropagated)
	require.ErrorIs(t, err, domain.ErrDataChannelUnavailable)

	p, _ := prof.participant("s1")
	require.True(t, p.IsMuted)

	// Студент ничего не получил, его микрофон включен
	require.False(t, students[0].media.State().IsMuted)
}

func Test_Moderation_ignores_commands_from_students(t *testing.T) {
	_, _, students := classroom(t, 2)
	s1, s2 := students[0], students[1]

	payload, err := events.NewModerationCommand(events.CommandMute, "s2").Encode()
	require.NoError(t, err)
	require.NoError(t, s1.conn.SendData(context.Background(), payload))

	// raise_hand идет следом и служит барьером
	require.NoError(t, s1.moderation.RaiseHand(context.Background()))

	waitRoster(t, s2, func([]domain.ParticipantViewModel) bool {
		p, ok := s2.participant("s1")
		return ok && p.HandRaised
	})

	require.False(t, s2.media.State().IsMuted)
	require.False(t, s2.flags.Get("s2").Muted)
}

func Test_Moderation_hands(t *testing.T) {
	_, prof, students := classroom(t, 1)
	s1 := students[0]

	require.NoError(t, s1.moderation.RaiseHand(context.Background()))

	me, _ := s1.participant("s1")
	require.True(t, me.HandRaised)

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, _ := prof.participant("s1")
		return p.HandRaised
	})

	require.NoError(t, prof.moderation.AcknowledgeHand(context.Background(), "s1"))

	p, _ := prof.participant("s1")
	require.False(t, p.HandRaised)

	waitRoster(t, s1, func([]domain.ParticipantViewModel) bool {
		me, _ := s1.participant("s1")
		return !me.HandRaised
	})
}

func Test_Moderation_give_floor(t *testing.T) {
	_, prof, students := classroom(t, 3)
	s1, s2 := students[0], students[1]

	require.NoError(t, prof.moderation.Mute(context.Background(), "s1"))
	require.Eventually(t, func() bool { return s1.media.State().IsMuted }, waitFor, tick)
	settle(t, prof)

	before := prof.conn.Snapshot().Version
	require.NoError(t, prof.moderation.GiveFloor(context.Background(), "s1"))
	require.Equal(t, before+1, prof.conn.Snapshot().Version)

	picked, _ := prof.participant("s1")
	require.True(t, picked.IsPicked)
	require.False(t, prof.moderation.Flags("s1").Muted)

	for _, id := range []string{"s2", "s3"} {
		require.True(t, prof.moderation.Flags(id).Muted, id)
	}

	require.Eventually(t, func() bool { return s2.media.State().IsMuted }, waitFor, tick)

	waitRoster(t, s1, func([]domain.ParticipantViewModel) bool {
		me, _ := s1.participant("s1")
		return me.IsPicked
	})
}

func Test_Moderation_stop_screen_share(t *testing.T) {
	_, prof, students := classroom(t, 1)
	s1 := students[0]

	require.NoError(t, s1.media.ToggleScreenShare(context.Background()))

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, _ := prof.participant("s1")
		return p.IsScreenSharing
	})

	require.NoError(t, prof.moderation.StopScreenShare(context.Background(), "s1"))

	require.Eventually(t, func() bool { return !s1.media.State().IsScreenSharing }, waitFor, tick)

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, _ := prof.participant("s1")
		return !p.IsScreenSharing
	})
}

package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/domain"
)

func Test_Session_publishes_tracks_held_before_join(t *testing.T) {
	room := newTestRoom()
	prof := room.client(t, "prof", domain.RoleProfessor)
	student := room.client(t, "s1", domain.RoleStudent)

	prof.join(t)

	// Микрофон получен до входа в комнату
	student.speak(t)
	student.join(t)

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, ok := prof.participant("s1")
		return ok && !p.IsMuted
	})
}

func Test_Session_camera_follows_media_state(t *testing.T) {
	room := newTestRoom()
	prof := room.client(t, "prof", domain.RoleProfessor)
	student := room.client(t, "s1", domain.RoleStudent)

	prof.join(t)
	student.join(t)
	waitSize(t, prof, 2)

	require.NoError(t, student.media.ToggleCamera(context.Background()))

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, _ := prof.participant("s1")
		return p.IsCameraOn && p.IsMuted
	})

	me, _ := student.participant("s1")
	require.True(t, me.IsCameraOn)

	require.NoError(t, student.media.ToggleCamera(context.Background()))

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, _ := prof.participant("s1")
		return !p.IsCameraOn
	})
}

func Test_Session_snapshot(t *testing.T) {
	room := newTestRoom()
	c := room.client(t, "alice", domain.RoleAdmin)

	snap := c.session.Snapshot()
	require.Equal(t, "alice", snap.UserID)
	require.Equal(t, testRoomID, snap.RoomID)
	require.Equal(t, domain.StatusIdle, snap.State.Status)
	require.Empty(t, snap.Roster.Participants)
	require.True(t, snap.Media.IsMuted)

	c.join(t)
	c.speak(t)

	waitRoster(t, c, func(r []domain.ParticipantViewModel) bool { return len(r) == 1 && !r[0].IsMuted })

	snap = c.session.Snapshot()
	require.Equal(t, domain.StatusConnected, snap.State.Status)
	require.False(t, snap.Media.IsMuted)
	require.Equal(t, domain.RoleAdmin, snap.Roster.Participants[0].Role)
	require.Equal(t, "alice", snap.Roster.Participants[0].DisplayName)
}

func Test_Session_leave_keeps_devices_and_rejoin_republishes(t *testing.T) {
	room := newTestRoom()
	prof := room.client(t, "prof", domain.RoleProfessor)
	student := room.client(t, "s1", domain.RoleStudent)

	prof.join(t)
	student.join(t)
	student.speak(t)

	require.NoError(t, student.session.Leave(context.Background()))
	waitSize(t, prof, 1)

	require.False(t, student.media.State().IsMuted)

	student.join(t)

	waitRoster(t, prof, func([]domain.ParticipantViewModel) bool {
		p, ok := prof.participant("s1")
		return ok && !p.IsMuted
	})
}

func Test_Session_close_releases_devices(t *testing.T) {
	room := newTestRoom()
	c := room.client(t, "alice", domain.RoleStudent)

	c.join(t)
	c.speak(t)
	require.NoError(t, c.media.ToggleScreenShare(context.Background()))

	require.NoError(t, c.session.Close(context.Background()))

	for _, tr := range c.devices.Acquired() {
		require.True(t, tr.Stopped())
		require.Equal(t, 1, tr.StopCount())
	}

	require.Empty(t, room.hub.Members(testRoomID))
	require.ErrorIs(t, c.session.Join(context.Background()), domain.ErrConnectionClosed)
}

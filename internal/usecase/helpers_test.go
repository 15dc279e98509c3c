package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/credential"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

const (
	testRoomID = "room-1"
	waitFor    = 2 * time.Second
	tick       = 5 * time.Millisecond
)

type testRoom struct {
	hub   *memory.RoomHub
	creds *credential.LocalService
}

func newTestRoom() *testRoom {
	issuer := credential.NewIssuer("test-secret", "ws://memory.test/signal", time.Hour)

	return &testRoom{
		hub:   memory.NewRoomHub(issuer.Grant),
		creds: credential.NewLocalService(issuer),
	}
}

// testClient - полный стек одного участника поверх общей комнаты
type testClient struct {
	id         string
	transport  *memory.Transport
	devices    *memory.Devices
	flags      memory.ModerationFlagsRepository
	conn       usecase.ConnectionUsecase
	media      usecase.MediaUsecase
	moderation usecase.ModerationUsecase
	session    usecase.SessionUsecase
}

func (r *testRoom) client(t *testing.T, id string, role domain.Role, opts ...memory.TransportOption) *testClient {
	t.Helper()

	r.creds.SetProfile(id, credential.Profile{Name: id, Role: role})

	c := &testClient{
		id:        id,
		transport: memory.NewTransport(r.hub, opts...),
		devices:   memory.NewDevices(),
		flags:     memory.NewModerationFlagsRepository(),
	}

	c.conn = usecase.NewConnectionUsecase(r.creds, c.transport, c.flags)
	c.media = usecase.NewMediaUsecase(c.devices)
	c.moderation = usecase.NewModerationUsecase(c.conn, c.flags, c.media)
	c.session = usecase.NewSessionUsecase(
		usecase.SessionParams{UserID: id, RoomID: testRoomID},
		c.conn,
		c.media,
		c.moderation,
	)

	t.Cleanup(func() {
		_ = c.session.Close(context.Background())
	})

	return c
}

func (c *testClient) join(t *testing.T) {
	t.Helper()

	require.NoError(t, c.session.Join(context.Background()))
}

// speak дает участнику включенный микрофон
func (c *testClient) speak(t *testing.T) {
	t.Helper()

	granted, err := c.media.RequestMicrophoneAccess(context.Background())
	require.NoError(t, err)
	require.True(t, granted)

	require.False(t, c.media.ToggleMicrophone().IsMuted)
}

func (c *testClient) participant(id string) (domain.ParticipantViewModel, bool) {
	for _, p := range c.conn.Roster() {
		if p.ID == id {
			return p, true
		}
	}

	return domain.ParticipantViewModel{}, false
}

func waitRoster(t *testing.T, c *testClient, cond func([]domain.ParticipantViewModel) bool) {
	t.Helper()

	require.Eventually(t, func() bool { return cond(c.conn.Roster()) }, waitFor, tick)
}

// settle ждет, пока очередь событий клиента опустеет и версия ростера перестанет расти
func settle(t *testing.T, c *testClient) {
	t.Helper()

	require.Eventually(t, func() bool {
		v := c.conn.Snapshot().Version
		time.Sleep(30 * time.Millisecond)

		return v == c.conn.Snapshot().Version
	}, waitFor, tick)
}

func waitSize(t *testing.T, c *testClient, n int) {
	t.Helper()

	waitRoster(t, c, func(r []domain.ParticipantViewModel) bool { return len(r) == n })
}

func waitStatus(t *testing.T, c *testClient, status domain.ConnectionStatus) {
	t.Helper()

	require.Eventually(t, func() bool { return c.conn.State().Status == status }, waitFor, tick)
}

// countingService считает вызовы и может держать их до release
type countingService struct {
	next usecase.CredentialService

	mu    sync.Mutex
	calls int
	gate  chan struct{}
	err   error
}

func (s *countingService) RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error) {
	s.mu.Lock()
	s.calls++
	gate, err := s.gate, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.RoomCredential{}, ctx.Err()
		}
	}

	if err != nil {
		return domain.RoomCredential{}, err
	}

	return s.next.RequestCredential(ctx, userID, roomID)
}

func (s *countingService) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// fakePeer - неизменяемый хендл для проверок проекции
type fakePeer struct {
	id, name, metadata            string
	mic, camera, screen, speaking bool
}

func (p fakePeer) Identity() string           { return p.id }
func (p fakePeer) Name() string               { return p.name }
func (p fakePeer) Metadata() string           { return p.metadata }
func (p fakePeer) IsMicrophoneEnabled() bool  { return p.mic }
func (p fakePeer) IsCameraEnabled() bool      { return p.camera }
func (p fakePeer) IsScreenShareEnabled() bool { return p.screen }
func (p fakePeer) IsSpeaking() bool           { return p.speaking }

// recordingObserver запоминает вызовы MediaObserver
type recordingObserver struct {
	mu       sync.Mutex
	acquired []domain.MediaTrack
	released []domain.MediaTrack
	states   []domain.LocalMediaState
}

func (o *recordingObserver) TrackAcquired(track domain.MediaTrack) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.acquired = append(o.acquired, track)
}

func (o *recordingObserver) TrackReleased(track domain.MediaTrack) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.released = append(o.released, track)
}

func (o *recordingObserver) StateChanged(state domain.LocalMediaState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.states = append(o.states, state)
}

func (o *recordingObserver) counts() (acquired, released, states int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.acquired), len(o.released), len(o.states)
}

package signaling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/domain/events"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/signaling"
)

const waitFor = 2 * time.Second

// fakeServer - сигналинг-сервер, который отвечает joined и отдает соединение тесту
type fakeServer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	joined events.JoinedEvent
	reject string
}

func newFakeServer(t *testing.T, joined events.JoinedEvent) *fakeServer {
	t.Helper()

	s := &fakeServer{conns: make(chan *websocket.Conn, 4), joined: joined}

	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var msg events.Message
		if err = conn.ReadJSON(&msg); err != nil || msg.Type != events.TypeJoin {
			_ = conn.Close()
			return
		}

		if s.reject != "" {
			reply, _ := events.NewMessage(events.TypeError, events.ErrorEvent{Message: s.reject})
			_ = conn.WriteJSON(reply)
			_ = conn.Close()
			return
		}

		reply, _ := events.NewMessage(events.TypeJoined, s.joined)
		if err = conn.WriteJSON(reply); err != nil {
			_ = conn.Close()
			return
		}

		s.conns <- conn
	}))

	t.Cleanup(s.srv.Close)

	return s
}

func (s *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()

	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(waitFor):
		t.Fatal("client did not connect")
		return nil
	}
}

func push(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()

	msg, err := events.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// expect читает сообщения клиента, пока не встретит нужный тип
func expect(t *testing.T, conn *websocket.Conn, msgType string) events.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	for {
		var msg events.Message
		require.NoError(t, conn.ReadJSON(&msg))

		if msg.Type == msgType {
			return msg
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (r *recorder) handle(ev domain.RoomEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) find(kind domain.EventKind) (domain.RoomEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}

	return domain.RoomEvent{}, false
}

func (r *recorder) wait(t *testing.T, kind domain.EventKind) domain.RoomEvent {
	t.Helper()

	var ev domain.RoomEvent
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = r.find(kind)
		return ok
	}, waitFor, 5*time.Millisecond, "no %s event", kind)

	return ev
}

// signalingTrack - трек без RTP, публикуется только в сигналинге
type signalingTrack struct {
	id     string
	source domain.TrackSource

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func (s *signalingTrack) ID() string                 { return s.id }
func (s *signalingTrack) Kind() domain.TrackKind     { return domain.TrackKindAudio }
func (s *signalingTrack) Source() domain.TrackSource { return s.source }
func (s *signalingTrack) OnEnded(func())             {}

func (s *signalingTrack) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *signalingTrack) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *signalingTrack) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *signalingTrack) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func testConfig() config.SignalingConfig {
	return config.SignalingConfig{
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
		WriteTimeout:      time.Second,
	}
}

func connect(t *testing.T, s *fakeServer) (*signaling.Transport, *recorder, *websocket.Conn) {
	t.Helper()

	rec := &recorder{}

	tr := signaling.NewTransport(testConfig(), nil)
	tr.OnEvent(rec.handle)

	require.NoError(t, tr.Connect(context.Background(), s.url(), "token"))
	t.Cleanup(func() { _ = tr.Disconnect(context.Background()) })

	return tr, rec, s.accept(t)
}

func classJoined() events.JoinedEvent {
	return events.JoinedEvent{
		Local: events.ParticipantInfo{Identity: "alice", Name: "Alice"},
		Participants: []events.ParticipantInfo{
			{Identity: "bob", Name: "Bob", Metadata: `{"role":"student"}`},
		},
	}
}

func Test_Transport_connect_reports_room(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, rec, _ := connect(t, s)

	rec.wait(t, domain.EventConnected)

	local := tr.LocalPeer()
	require.NotNil(t, local)
	require.Equal(t, "alice", local.Identity())
	require.Equal(t, "Alice", local.Name())

	remotes := tr.RemotePeers()
	require.Len(t, remotes, 1)
	require.Equal(t, "bob", remotes[0].Identity())
	require.Equal(t, `{"role":"student"}`, remotes[0].Metadata())

	require.ErrorIs(t, tr.Connect(context.Background(), s.url(), "token"), domain.ErrAlreadyConnected)
}

func Test_Transport_join_rejected(t *testing.T) {
	s := newFakeServer(t, classJoined())
	s.reject = "room is full"

	tr := signaling.NewTransport(testConfig(), nil)

	err := tr.Connect(context.Background(), s.url(), "token")
	require.ErrorIs(t, err, signaling.ErrJoinRejected)
	require.Nil(t, tr.LocalPeer())
}

func Test_Transport_applies_room_events(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, rec, conn := connect(t, s)

	// Битое сообщение пропускается, соединение живет
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))

	push(t, conn, events.TypeParticipantJoined, events.ParticipantInfo{Identity: "carol", Name: "Carol"})
	ev := rec.wait(t, domain.EventParticipantJoined)
	require.Equal(t, "carol", ev.ParticipantID)

	push(t, conn, events.TypeTrackPublished, events.TrackEvent{
		Identity: "bob",
		Track:    events.TrackInfo{ID: "bob-mic", Kind: "audio", Source: string(domain.SourceMicrophone)},
	})
	rec.wait(t, domain.EventTrackPublished)

	push(t, conn, events.TypeSpeakers, events.SpeakersEvent{Identities: []string{"bob", "alice"}})
	rec.wait(t, domain.EventActiveSpeakersChanged)

	push(t, conn, events.TypeParticipantLeft, events.ParticipantLeftEvent{Identity: "carol"})
	rec.wait(t, domain.EventParticipantLeft)

	remotes := tr.RemotePeers()
	require.Len(t, remotes, 1)

	bob := remotes[0]
	require.True(t, bob.IsMicrophoneEnabled())
	require.False(t, bob.IsCameraEnabled())
	require.True(t, bob.IsSpeaking())
	require.True(t, tr.LocalPeer().IsSpeaking())

	push(t, conn, events.TypeTrackState, events.TrackEvent{
		Identity: "bob",
		Track:    events.TrackInfo{ID: "bob-mic", Kind: "audio", Source: string(domain.SourceMicrophone), Muted: true},
	})
	rec.wait(t, domain.EventTrackMuted)
	require.False(t, bob.IsMicrophoneEnabled())

	push(t, conn, events.TypeData, events.DataEvent{Sender: "bob", Payload: []byte(`{"kind":"chat"}`)})
	data := rec.wait(t, domain.EventDataReceived)
	require.Equal(t, "bob", data.ParticipantID)
	require.JSONEq(t, `{"kind":"chat"}`, string(data.Data))
}

func Test_Transport_publishes_and_sends(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, _, conn := connect(t, s)

	mic := &signalingTrack{id: "alice-mic", source: domain.SourceMicrophone, enabled: true}
	require.NoError(t, tr.Publish(context.Background(), mic))

	msg := expect(t, conn, events.TypePublish)
	require.JSONEq(t, `{"track":{"id":"alice-mic","kind":"audio","source":"microphone","muted":false}}`, string(msg.Data))
	require.True(t, tr.LocalPeer().IsMicrophoneEnabled())

	require.NoError(t, tr.UpdateTrackState(context.Background(), "alice-mic", true))
	expect(t, conn, events.TypeTrackState)
	require.False(t, tr.LocalPeer().IsMicrophoneEnabled())

	require.NoError(t, tr.SendData(context.Background(), []byte("hi")))
	msg = expect(t, conn, events.TypeData)
	require.JSONEq(t, `{"payload":"aGk="}`, string(msg.Data))

	require.NoError(t, tr.Unpublish(context.Background(), "alice-mic"))
	expect(t, conn, events.TypeUnpublish)
}

func Test_Transport_server_close_is_terminal(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, rec, conn := connect(t, s)

	push(t, conn, events.TypeClose, events.CloseEvent{Reason: domain.ReasonKicked})

	ev := rec.wait(t, domain.EventDisconnected)
	require.Equal(t, domain.ReasonKicked, ev.Reason)
	require.Nil(t, tr.LocalPeer())
	require.ErrorIs(t, tr.SendData(context.Background(), []byte("x")), domain.ErrNotConnected)
}

func Test_Transport_reconnects_and_republishes(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, rec, conn := connect(t, s)

	mic := &signalingTrack{id: "alice-mic", source: domain.SourceMicrophone, enabled: true}
	require.NoError(t, tr.Publish(context.Background(), mic))
	expect(t, conn, events.TypePublish)

	// Обрыв без close frame
	require.NoError(t, conn.Close())

	rec.wait(t, domain.EventReconnecting)

	next := s.accept(t)
	rec.wait(t, domain.EventReconnected)

	msg := expect(t, next, events.TypePublish)
	require.Contains(t, string(msg.Data), "alice-mic")

	_, disconnected := rec.find(domain.EventDisconnected)
	require.False(t, disconnected)
	require.Len(t, tr.RemotePeers(), 1)
}

func Test_Transport_client_disconnect(t *testing.T) {
	s := newFakeServer(t, classJoined())

	tr, rec, conn := connect(t, s)

	require.NoError(t, tr.Disconnect(context.Background()))

	ev := rec.wait(t, domain.EventDisconnected)
	require.Equal(t, domain.ReasonClientInitiated, ev.Reason)

	expect(t, conn, events.TypeLeave)
	require.Nil(t, tr.LocalPeer())

	// Повторный Disconnect ничего не делает
	require.NoError(t, tr.Disconnect(context.Background()))
}

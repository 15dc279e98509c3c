package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain/events"
)

var (
	ErrJoinRejected = errors.New("join rejected by server")
	errBadMessage   = errors.New("malformed signaling message")
)

// link - одно подключение к серверу: websocket сигналинга и peer connection.
// При переподключении создается новый link.
type link struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	pcMu       sync.Mutex
	pc         *webrtc.PeerConnection
	iceServers []webrtc.ICEServer
	senders    map[string]*webrtc.RTPSender

	closeOnce sync.Once
	done      chan struct{}
}

// dial открывает websocket, отправляет join и ждет joined
func dial(
	ctx context.Context,
	dialer *websocket.Dialer,
	serverURL, token string,
	writeTimeout time.Duration,
	iceServers []webrtc.ICEServer,
) (*link, events.JoinedEvent, error) {
	ws, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, events.JoinedEvent{}, fmt.Errorf("dial signaling: %w", err)
	}

	l := &link{
		ws:           ws,
		writeTimeout: writeTimeout,
		iceServers:   iceServers,
		senders:      make(map[string]*webrtc.RTPSender),
		done:         make(chan struct{}),
	}

	if err = l.send(events.TypeJoin, events.JoinEvent{Token: token}); err != nil {
		l.close()
		return nil, events.JoinedEvent{}, err
	}

	// Ответ на join читаем синхронно, до запуска readLoop
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := l.read()
	if err != nil {
		l.close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, events.JoinedEvent{}, ctxErr
		}
		return nil, events.JoinedEvent{}, fmt.Errorf("read join response: %w", err)
	}

	switch msg.Type {
	case events.TypeJoined:
		var joined events.JoinedEvent
		if err = json.Unmarshal(msg.Data, &joined); err != nil {
			l.close()
			return nil, events.JoinedEvent{}, fmt.Errorf("unmarshal joined: %w", err)
		}

		_ = ws.SetReadDeadline(time.Time{})

		return l, joined, nil

	case events.TypeError:
		var e events.ErrorEvent
		_ = json.Unmarshal(msg.Data, &e)
		l.close()

		return nil, events.JoinedEvent{}, fmt.Errorf("%w: %s", ErrJoinRejected, e.Message)

	default:
		l.close()
		return nil, events.JoinedEvent{}, fmt.Errorf("%w: unexpected %q", ErrJoinRejected, msg.Type)
	}
}

func (l *link) send(msgType string, payload any) error {
	msg, err := events.NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err = l.ws.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err = l.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}

	return nil
}

func (l *link) ping() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	return l.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.writeTimeout))
}

func (l *link) read() (events.Message, error) {
	var msg events.Message

	_, raw, err := l.ws.ReadMessage()
	if err != nil {
		return msg, err
	}

	if err = json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", errBadMessage, err)
	}

	return msg, nil
}

// peerConnection создает peer connection при первой необходимости
func (l *link) peerConnection(onTrack func(*webrtc.TrackRemote), onFailed func()) (*webrtc.PeerConnection, error) {
	l.pcMu.Lock()
	defer l.pcMu.Unlock()

	if l.pc != nil {
		return l.pc, nil
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: l.iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		if err := l.send(events.TypeCandidate, events.IceCandidateEvent{Candidate: c.ToJSON()}); err != nil {
			slog.Error("send ice candidate", slog.Any(constant.Error, err))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		onTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", slog.String(constant.State, state.String()))

		if state == webrtc.PeerConnectionStateFailed {
			onFailed()
		}
	})

	l.pc = pc

	return pc, nil
}

func (l *link) addTrack(pc *webrtc.PeerConnection, trackID string, track webrtc.TrackLocal) error {
	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track %s: %w", trackID, err)
	}

	l.pcMu.Lock()
	l.senders[trackID] = sender
	l.pcMu.Unlock()

	// RTCP надо вычитывать, иначе interceptors встанут
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return nil
}

// removeTrack returns false when the track was never added to the peer connection.
func (l *link) removeTrack(trackID string) (bool, error) {
	l.pcMu.Lock()
	sender, ok := l.senders[trackID]
	delete(l.senders, trackID)
	pc := l.pc
	l.pcMu.Unlock()

	if !ok || pc == nil {
		return false, nil
	}

	if err := pc.RemoveTrack(sender); err != nil {
		return true, fmt.Errorf("remove track %s: %w", trackID, err)
	}

	return true, nil
}

func (l *link) negotiate() error {
	l.pcMu.Lock()
	pc := l.pc
	l.pcMu.Unlock()

	if pc == nil {
		return nil
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	if err = pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return l.send(events.TypeOffer, events.SdpEvent{SDP: offer.SDP})
}

func (l *link) handleOffer(pc *webrtc.PeerConnection, sdp string) error {
	err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err = pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return l.send(events.TypeAnswer, events.SdpEvent{SDP: answer.SDP})
}

func (l *link) handleAnswer(sdp string) error {
	l.pcMu.Lock()
	pc := l.pc
	l.pcMu.Unlock()

	if pc == nil {
		return nil
	}

	return pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (l *link) handleCandidate(candidate webrtc.ICECandidateInit) error {
	l.pcMu.Lock()
	pc := l.pc
	l.pcMu.Unlock()

	if pc == nil {
		return nil
	}

	return pc.AddICECandidate(candidate)
}

// close идемпотентен
func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)

		l.writeMu.Lock()
		_ = l.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		l.writeMu.Unlock()

		_ = l.ws.Close()

		l.pcMu.Lock()
		pc := l.pc
		l.pc = nil
		l.pcMu.Unlock()

		if pc != nil {
			if err := pc.Close(); err != nil {
				slog.Warn("close peer connection", slog.Any(constant.Error, err))
			}
		}
	})
}

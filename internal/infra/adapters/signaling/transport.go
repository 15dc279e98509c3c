package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
	"github.com/sethvargo/go-retry"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/domain/events"
)

var (
	ErrNotConnected     = fmt.Errorf("signaling: %w", domain.ErrNotConnected)
	ErrAlreadyConnected = fmt.Errorf("signaling: %w", domain.ErrAlreadyConnected)
)

// RTCTrack - трек с реальным RTP источником. Остальные треки публикуются только в сигналинге.
type RTCTrack interface {
	TrackLocal() webrtc.TrackLocal
}

// Transport - клиент сигналинг-сервера комнаты поверх websocket и pion.
// Потерю соединения переживает сам: Reconnecting, затем Reconnected или Disconnected.
type Transport struct {
	cfg        config.SignalingConfig
	iceServers []webrtc.ICEServer
	dialer     *websocket.Dialer

	mu        sync.RWMutex
	handler   func(domain.RoomEvent)
	link      *link
	room      *roomState
	serverURL string
	token     string
	published []domain.MediaTrack
	muted     map[string]bool
	cancel    context.CancelFunc
}

func NewTransport(cfg config.SignalingConfig, iceServers []webrtc.ICEServer) *Transport {
	return &Transport{
		cfg:        cfg,
		iceServers: iceServers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.WriteTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		muted: make(map[string]bool),
	}
}

func (t *Transport) OnEvent(handler func(domain.RoomEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

func (t *Transport) Connect(ctx context.Context, serverURL, token string) error {
	t.mu.RLock()
	connected := t.link != nil
	t.mu.RUnlock()

	if connected {
		return ErrAlreadyConnected
	}

	l, joined, err := dial(ctx, t.dialer, serverURL, token, t.cfg.WriteTimeout, t.iceServers)
	if err != nil {
		return err
	}

	bg, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	if t.link != nil {
		t.mu.Unlock()
		cancel()
		l.close()

		return ErrAlreadyConnected
	}

	t.link = l
	t.room = newRoomState(joined)
	t.serverURL = serverURL
	t.token = token
	t.cancel = cancel
	t.mu.Unlock()

	slog.Info(
		"signaling connected",
		slog.String(constant.ParticipantID, joined.Local.Identity),
		slog.Int(constant.Count, len(joined.Participants)),
	)

	t.start(bg, l)
	t.emit(domain.RoomEvent{Kind: domain.EventConnected})

	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	l := t.reset(nil)
	if l == nil {
		return nil
	}

	if err := l.send(events.TypeLeave, nil); err != nil {
		slog.Debug("send leave", slog.Any(constant.Error, err))
	}

	l.close()
	t.emit(domain.RoomEvent{Kind: domain.EventDisconnected, Reason: domain.ReasonClientInitiated})

	return nil
}

func (t *Transport) LocalPeer() domain.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.room == nil {
		return nil
	}

	return &localPeer{t: t}
}

func (t *Transport) RemotePeers() []domain.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.room == nil {
		return nil
	}

	return lo.Map(t.room.order, func(id string, _ int) domain.Peer {
		return &remotePeer{t: t, identity: id}
	})
}

func (t *Transport) Publish(ctx context.Context, track domain.MediaTrack) error {
	t.mu.Lock()
	l := t.link
	if l == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}

	if !lo.ContainsBy(t.published, func(p domain.MediaTrack) bool { return p.ID() == track.ID() }) {
		t.published = append(t.published, track)
	}

	muted := t.muted[track.ID()] || !track.Enabled()
	t.mu.Unlock()

	if err := t.publishOn(l, track, muted); err != nil {
		return err
	}

	if _, ok := track.(RTCTrack); ok {
		return l.negotiate()
	}

	return nil
}

func (t *Transport) Unpublish(ctx context.Context, trackID string) error {
	t.mu.Lock()
	l := t.link
	if l == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}

	t.published = slices.DeleteFunc(t.published, func(p domain.MediaTrack) bool { return p.ID() == trackID })
	delete(t.muted, trackID)
	t.mu.Unlock()

	removed, err := l.removeTrack(trackID)
	if err != nil {
		return err
	}

	if err = l.send(events.TypeUnpublish, events.PublishEvent{Track: events.TrackInfo{ID: trackID}}); err != nil {
		return err
	}

	if removed {
		return l.negotiate()
	}

	return nil
}

func (t *Transport) UpdateTrackState(ctx context.Context, trackID string, muted bool) error {
	t.mu.Lock()
	l := t.link
	if l == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}

	t.muted[trackID] = muted
	t.mu.Unlock()

	return l.send(events.TypeTrackState, events.TrackStateEvent{TrackID: trackID, Muted: muted})
}

func (t *Transport) SendData(ctx context.Context, payload []byte) error {
	t.mu.RLock()
	l := t.link
	t.mu.RUnlock()

	if l == nil {
		return ErrNotConnected
	}

	return l.send(events.TypeData, events.DataEvent{Payload: payload})
}

func (t *Transport) publishOn(l *link, track domain.MediaTrack, muted bool) error {
	if rtc, ok := track.(RTCTrack); ok {
		pc, err := l.peerConnection(drainAsync, func() { l.close() })
		if err != nil {
			return err
		}

		if err = l.addTrack(pc, track.ID(), rtc.TrackLocal()); err != nil {
			return err
		}
	}

	return l.send(events.TypePublish, events.PublishEvent{Track: trackInfo(track, muted)})
}

// publishedLive: опубликованный, живой, включенный и не замьюченный трек источника
func (t *Transport) publishedLive(source domain.TrackSource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.SomeBy(t.published, func(p domain.MediaTrack) bool {
		return p.Source() == source && !p.Stopped() && p.Enabled() && !t.muted[p.ID()]
	})
}

func (t *Transport) start(ctx context.Context, l *link) {
	if t.cfg.PingPeriod > 0 {
		deadline := 2 * t.cfg.PingPeriod

		_ = l.ws.SetReadDeadline(time.Now().Add(deadline))
		l.ws.SetPongHandler(func(string) error {
			return l.ws.SetReadDeadline(time.Now().Add(deadline))
		})

		go t.pingLoop(ctx, l)
	}

	go t.readLoop(ctx, l)
}

func (t *Transport) pingLoop(ctx context.Context, l *link) {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.ping(); err != nil {
				slog.Error("ping failed", slog.Any(constant.Error, err))
				return
			}
		case <-l.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) readLoop(ctx context.Context, l *link) {
	for {
		msg, err := l.read()
		if errors.Is(err, errBadMessage) {
			slog.Warn("skip signaling message", slog.Any(constant.Error, err))
			continue
		}

		if err != nil {
			if ctx.Err() != nil || !t.current(l) {
				return
			}

			handleWebsocketError(err)
			t.reconnect(ctx, l)

			return
		}

		if err = t.handleMessage(l, msg); err != nil {
			slog.Error(
				"handle signaling message",
				slog.String("type", msg.Type),
				slog.Any(constant.Error, err),
			)
		}
	}
}

// reconnect восстанавливает подключение с экспоненциальной паузой
func (t *Transport) reconnect(ctx context.Context, old *link) {
	old.close()

	t.emit(domain.RoomEvent{Kind: domain.EventReconnecting})

	t.mu.RLock()
	serverURL, token := t.serverURL, t.token
	t.mu.RUnlock()

	backoff := retry.WithMaxRetries(t.cfg.ReconnectAttempts, retry.NewExponential(t.cfg.ReconnectDelay))

	var (
		next    *link
		joined  events.JoinedEvent
		attempt int
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		l, j, err := dial(ctx, t.dialer, serverURL, token, t.cfg.WriteTimeout, t.iceServers)
		if err != nil {
			slog.Warn(
				"reconnect attempt failed",
				slog.Int(constant.Attempt, attempt),
				slog.Any(constant.Error, err),
			)

			// Сервер отказал в join: повтор ничего не изменит
			if errors.Is(err, ErrJoinRejected) {
				return err
			}

			return retry.RetryableError(err)
		}

		next, joined = l, j

		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		slog.Error("reconnect gave up", slog.Int(constant.Attempt, attempt), slog.Any(constant.Error, err))
		t.terminate(old, domain.ReasonNetworkLost)

		return
	}

	t.mu.Lock()
	if ctx.Err() != nil || t.link != old {
		t.mu.Unlock()
		next.close()

		return
	}

	t.link = next
	t.room = newRoomState(joined)
	tracks := slices.Clone(t.published)
	muted := make(map[string]bool, len(tracks))
	for _, tr := range tracks {
		muted[tr.ID()] = t.muted[tr.ID()] || !tr.Enabled()
	}
	t.mu.Unlock()

	rtc := false
	for _, tr := range tracks {
		if err = t.publishOn(next, tr, muted[tr.ID()]); err != nil {
			slog.Error("republish track", slog.String(constant.TrackID, tr.ID()), slog.Any(constant.Error, err))
		}

		if _, ok := tr.(RTCTrack); ok {
			rtc = true
		}
	}

	if rtc {
		if err = next.negotiate(); err != nil {
			slog.Error("renegotiate after reconnect", slog.Any(constant.Error, err))
		}
	}

	slog.Info("signaling reconnected", slog.Int(constant.Attempt, attempt))

	t.start(ctx, next)
	t.emit(domain.RoomEvent{Kind: domain.EventReconnected})
}

// terminate - сервер или сеть закончили сессию. Состояние терминальное.
func (t *Transport) terminate(l *link, reason string) {
	if t.reset(l) == nil {
		return
	}

	l.close()
	t.emit(domain.RoomEvent{Kind: domain.EventDisconnected, Reason: reason})
}

// reset забирает текущий link и очищает состояние подключения.
// Если expect не nil, сбрасывает только когда текущий link совпадает с ним.
func (t *Transport) reset(expect *link) *link {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.link
	if l == nil || (expect != nil && l != expect) {
		return nil
	}

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}

	t.link = nil
	t.room = nil
	t.published = nil
	clear(t.muted)

	return l
}

func (t *Transport) current(l *link) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.link == l
}

func (t *Transport) handleMessage(l *link, msg events.Message) error {
	if !t.current(l) {
		return nil
	}

	switch msg.Type {
	case events.TypeParticipantJoined:
		p, err := decode[events.ParticipantInfo](msg)
		if err != nil {
			return err
		}

		if !t.mutateRoom(func(r *roomState) bool {
			if p.Identity == r.local.Identity {
				return false
			}
			r.upsert(p)
			return true
		}) {
			return nil
		}

		t.emit(domain.RoomEvent{Kind: domain.EventParticipantJoined, ParticipantID: p.Identity})

	case events.TypeParticipantLeft:
		p, err := decode[events.ParticipantLeftEvent](msg)
		if err != nil {
			return err
		}

		if t.mutateRoom(func(r *roomState) bool { return r.remove(p.Identity) }) {
			t.emit(domain.RoomEvent{Kind: domain.EventParticipantLeft, ParticipantID: p.Identity})
		}

	case events.TypeParticipantUpdated:
		p, err := decode[events.ParticipantInfo](msg)
		if err != nil {
			return err
		}

		t.mutateRoom(func(r *roomState) bool {
			if p.Identity == r.local.Identity {
				r.local.Name, r.local.Metadata = p.Name, p.Metadata
				return true
			}
			r.upsert(p)
			return true
		})

		t.emit(domain.RoomEvent{Kind: domain.EventParticipantMetadataChanged, ParticipantID: p.Identity})

	case events.TypeTrackPublished, events.TypeTrackState:
		e, err := decode[events.TrackEvent](msg)
		if err != nil {
			return err
		}

		if !t.mutateRoom(func(r *roomState) bool { return r.setTrack(e.Identity, e.Track) }) {
			return nil
		}

		kind := lo.Ternary(msg.Type == events.TypeTrackState, domain.EventTrackMuted, domain.EventTrackPublished)

		t.emit(domain.RoomEvent{
			Kind:          kind,
			ParticipantID: e.Identity,
			TrackID:       e.Track.ID,
			TrackKind:     domain.TrackKind(e.Track.Kind),
		})

	case events.TypeTrackUnpublished:
		e, err := decode[events.TrackEvent](msg)
		if err != nil {
			return err
		}

		if t.mutateRoom(func(r *roomState) bool { return r.removeTrack(e.Identity, e.Track.ID) }) {
			t.emit(domain.RoomEvent{
				Kind:          domain.EventTrackUnpublished,
				ParticipantID: e.Identity,
				TrackID:       e.Track.ID,
				TrackKind:     domain.TrackKind(e.Track.Kind),
			})
		}

	case events.TypeSpeakers:
		e, err := decode[events.SpeakersEvent](msg)
		if err != nil {
			return err
		}

		t.mutateRoom(func(r *roomState) bool {
			r.setSpeakers(e.Identities)
			return true
		})

		t.emit(domain.RoomEvent{Kind: domain.EventActiveSpeakersChanged})

	case events.TypeQuality:
		e, err := decode[events.QualityEvent](msg)
		if err != nil {
			return err
		}

		t.emit(domain.RoomEvent{
			Kind:          domain.EventConnectionQualityChanged,
			ParticipantID: e.Identity,
			Quality:       domain.ConnectionQuality(e.Quality),
		})

	case events.TypeData:
		e, err := decode[events.DataEvent](msg)
		if err != nil {
			return err
		}

		t.emit(domain.RoomEvent{Kind: domain.EventDataReceived, ParticipantID: e.Sender, Data: e.Payload})

	case events.TypeOffer:
		e, err := decode[events.SdpEvent](msg)
		if err != nil {
			return err
		}

		pc, err := l.peerConnection(drainAsync, func() { l.close() })
		if err != nil {
			return err
		}

		return l.handleOffer(pc, e.SDP)

	case events.TypeAnswer:
		e, err := decode[events.SdpEvent](msg)
		if err != nil {
			return err
		}

		return l.handleAnswer(e.SDP)

	case events.TypeCandidate:
		e, err := decode[events.IceCandidateEvent](msg)
		if err != nil {
			return err
		}

		return l.handleCandidate(e.Candidate)

	case events.TypeClose:
		e, err := decode[events.CloseEvent](msg)
		if err != nil {
			return err
		}

		slog.Info("server closed the session", slog.String(constant.Reason, e.Reason))
		t.terminate(l, lo.Ternary(e.Reason == "", domain.ReasonServerShutdown, e.Reason))

	case events.TypeError:
		e, err := decode[events.ErrorEvent](msg)
		if err != nil {
			return err
		}

		slog.Warn("signaling error from server", slog.String(constant.Error, e.Message))

	case events.TypePong:

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}

	return nil
}

// mutateRoom применяет fn под локом, если подключение есть
func (t *Transport) mutateRoom(fn func(r *roomState) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.room == nil {
		return false
	}

	return fn(t.room)
}

// emit вызывает обработчик вне локов транспорта
func (t *Transport) emit(ev domain.RoomEvent) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler != nil {
		handler(ev)
	}
}

func drainAsync(track *webrtc.TrackRemote) {
	go drain(track)
}

func decode[T any](msg events.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s: %w", msg.Type, err)
	}

	return v, nil
}

func handleWebsocketError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("signaling websocket closed by server", slog.Int("code", closeErr.Code))
		default:
			slog.Error("signaling websocket close error", slog.Int("code", closeErr.Code))
		}

		return
	}

	slog.Error("signaling websocket read", slog.Any(constant.Error, err))
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/qrave1/LiveRoom/internal/domain"
)

var ErrTransportNotConnected = fmt.Errorf("memory transport: %w", domain.ErrNotConnected)

// Transport - клиент RoomHub. Реализует usecase.Transport.
type Transport struct {
	hub *RoomHub

	mu          sync.RWMutex
	handler     func(domain.RoomEvent)
	grant       Grant
	connected   bool
	dropped     bool
	speaking    bool
	dataEnabled bool
	published   []domain.MediaTrack
	muted       map[string]bool

	// registrations считает вызовы OnEvent, их должно быть ровно один
	registrations int
}

type TransportOption func(*Transport)

// WithoutDataChannel - транспорт без data канала, модерация остается локальной
func WithoutDataChannel() TransportOption {
	return func(t *Transport) {
		t.dataEnabled = false
	}
}

func NewTransport(hub *RoomHub, opts ...TransportOption) *Transport {
	t := &Transport{
		hub:         hub,
		dataEnabled: true,
		muted:       make(map[string]bool),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *Transport) OnEvent(handler func(domain.RoomEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.registrations++
	if t.handler == nil {
		t.handler = handler
	}
}

// Registrations - сколько раз регистрировали обработчик
func (t *Transport) Registrations() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.registrations
}

func (t *Transport) Connect(ctx context.Context, serverURL, token string) error {
	grant, err := t.hub.verify(token)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	if gate := t.hub.waitGate(); gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.grant = grant
	t.connected = true
	t.dropped = false
	t.mu.Unlock()

	if err = t.hub.join(t, grant); err != nil {
		t.markDisconnected()
		return err
	}

	t.emit(domain.RoomEvent{Kind: domain.EventConnected})

	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()

	if !connected {
		return nil
	}

	t.hub.leave(t)
	t.markDisconnected()
	t.emit(domain.RoomEvent{Kind: domain.EventDisconnected, Reason: domain.ReasonClientInitiated})

	return nil
}

func (t *Transport) LocalPeer() domain.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return nil
	}

	return &peer{t: t}
}

func (t *Transport) RemotePeers() []domain.Peer {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()

	if !connected {
		return nil
	}

	return lo.Map(t.hub.remotes(t), func(m *Transport, _ int) domain.Peer {
		return &peer{t: m}
	})
}

func (t *Transport) Publish(ctx context.Context, track domain.MediaTrack) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrTransportNotConnected
	}

	if !lo.ContainsBy(t.published, func(p domain.MediaTrack) bool { return p.ID() == track.ID() }) {
		t.published = append(t.published, track)
	}

	roomID, identity := t.grant.RoomID, t.grant.Identity
	t.mu.Unlock()

	t.hub.broadcast(roomID, t, domain.RoomEvent{
		Kind:          domain.EventTrackPublished,
		ParticipantID: identity,
		TrackID:       track.ID(),
		TrackKind:     track.Kind(),
	})

	return nil
}

func (t *Transport) Unpublish(ctx context.Context, trackID string) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrTransportNotConnected
	}

	idx := slices.IndexFunc(t.published, func(p domain.MediaTrack) bool { return p.ID() == trackID })
	if idx < 0 {
		t.mu.Unlock()
		return nil
	}

	track := t.published[idx]
	t.published = slices.Delete(t.published, idx, idx+1)
	delete(t.muted, trackID)

	roomID, identity := t.grant.RoomID, t.grant.Identity
	t.mu.Unlock()

	t.hub.broadcast(roomID, t, domain.RoomEvent{
		Kind:          domain.EventTrackUnpublished,
		ParticipantID: identity,
		TrackID:       trackID,
		TrackKind:     track.Kind(),
	})

	return nil
}

func (t *Transport) UpdateTrackState(ctx context.Context, trackID string, muted bool) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrTransportNotConnected
	}

	t.muted[trackID] = muted
	roomID, identity := t.grant.RoomID, t.grant.Identity
	t.mu.Unlock()

	t.hub.broadcast(roomID, t, domain.RoomEvent{
		Kind:          domain.EventTrackMuted,
		ParticipantID: identity,
		TrackID:       trackID,
	})

	return nil
}

func (t *Transport) SendData(ctx context.Context, payload []byte) error {
	t.mu.RLock()
	connected, dataEnabled := t.connected, t.dataEnabled
	roomID, identity := t.grant.RoomID, t.grant.Identity
	t.mu.RUnlock()

	if !dataEnabled {
		return domain.ErrDataChannelUnavailable
	}

	if !connected {
		return ErrTransportNotConnected
	}

	t.hub.broadcast(roomID, t, domain.RoomEvent{
		Kind:          domain.EventDataReceived,
		ParticipantID: identity,
		Data:          slices.Clone(payload),
	})

	return nil
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

func (t *Transport) markDisconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	t.dropped = false
	t.speaking = false
	t.published = nil
	clear(t.muted)
}

func (t *Transport) setDropped(dropped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dropped = dropped
}

func (t *Transport) setSpeaking(speaking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.speaking = speaking
}

func (t *Transport) setMetadata(metadata string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.grant.Metadata = metadata
}

func (t *Transport) identity() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.grant.Identity
}

func (t *Transport) roomID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.grant.RoomID
}

// sourceLive: опубликованный, не остановленный, включенный и не замьюченный трек источника
func (t *Transport) sourceLive(source domain.TrackSource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.SomeBy(t.published, func(p domain.MediaTrack) bool {
		return p.Source() == source && !p.Stopped() && p.Enabled() && !t.muted[p.ID()]
	})
}

// peer - живой хендл: каждый геттер читает текущее состояние транспорта
type peer struct {
	t *Transport
}

func (p *peer) Identity() string {
	return p.t.identity()
}

func (p *peer) Name() string {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	return p.t.grant.Name
}

func (p *peer) Metadata() string {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	return p.t.grant.Metadata
}

func (p *peer) IsMicrophoneEnabled() bool {
	return p.t.sourceLive(domain.SourceMicrophone)
}

func (p *peer) IsCameraEnabled() bool {
	return p.t.sourceLive(domain.SourceCamera)
}

func (p *peer) IsScreenShareEnabled() bool {
	return p.t.sourceLive(domain.SourceScreen)
}

func (p *peer) IsSpeaking() bool {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	return p.t.speaking
}

package signaling

import (
	"slices"

	"github.com/samber/lo"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/domain/events"
)

// roomState - удаленные участники в порядке, в котором о них сообщил сервер
type roomState struct {
	local events.ParticipantInfo
	order []string
	byID  map[string]*events.ParticipantInfo
}

func newRoomState(joined events.JoinedEvent) *roomState {
	s := &roomState{
		local: joined.Local,
		byID:  make(map[string]*events.ParticipantInfo, len(joined.Participants)),
	}

	for _, p := range joined.Participants {
		s.upsert(p)
	}

	return s
}

func (s *roomState) upsert(p events.ParticipantInfo) {
	if _, ok := s.byID[p.Identity]; !ok {
		s.order = append(s.order, p.Identity)
	}

	info := p
	s.byID[p.Identity] = &info
}

func (s *roomState) remove(identity string) bool {
	if _, ok := s.byID[identity]; !ok {
		return false
	}

	delete(s.byID, identity)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == identity })

	return true
}

func (s *roomState) setTrack(identity string, track events.TrackInfo) bool {
	p, ok := s.byID[identity]
	if !ok {
		return false
	}

	idx := slices.IndexFunc(p.Tracks, func(t events.TrackInfo) bool { return t.ID == track.ID })
	if idx < 0 {
		p.Tracks = append(p.Tracks, track)
	} else {
		p.Tracks[idx] = track
	}

	return true
}

func (s *roomState) removeTrack(identity, trackID string) bool {
	p, ok := s.byID[identity]
	if !ok {
		return false
	}

	before := len(p.Tracks)
	p.Tracks = slices.DeleteFunc(p.Tracks, func(t events.TrackInfo) bool { return t.ID == trackID })

	return len(p.Tracks) != before
}

func (s *roomState) setSpeakers(identities []string) {
	for id, p := range s.byID {
		p.Speaking = lo.Contains(identities, id)
	}

	s.local.Speaking = lo.Contains(identities, s.local.Identity)
}

// remotePeer - живой хендл: состояние читается из транспорта при каждом вызове
type remotePeer struct {
	t        *Transport
	identity string
}

func (p *remotePeer) info() events.ParticipantInfo {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	if p.t.room == nil {
		return events.ParticipantInfo{Identity: p.identity}
	}

	info, ok := p.t.room.byID[p.identity]
	if !ok {
		return events.ParticipantInfo{Identity: p.identity}
	}

	out := *info
	out.Tracks = slices.Clone(info.Tracks)

	return out
}

func (p *remotePeer) Identity() string {
	return p.identity
}

func (p *remotePeer) Name() string {
	return p.info().Name
}

func (p *remotePeer) Metadata() string {
	return p.info().Metadata
}

func (p *remotePeer) IsMicrophoneEnabled() bool {
	return hasLiveTrack(p.info(), domain.SourceMicrophone)
}

func (p *remotePeer) IsCameraEnabled() bool {
	return hasLiveTrack(p.info(), domain.SourceCamera)
}

func (p *remotePeer) IsScreenShareEnabled() bool {
	return hasLiveTrack(p.info(), domain.SourceScreen)
}

func (p *remotePeer) IsSpeaking() bool {
	return p.info().Speaking
}

func hasLiveTrack(info events.ParticipantInfo, source domain.TrackSource) bool {
	return lo.SomeBy(info.Tracks, func(t events.TrackInfo) bool {
		return t.Source == string(source) && !t.Muted
	})
}

// localPeer читает собственные опубликованные треки
type localPeer struct {
	t *Transport
}

func (p *localPeer) Identity() string {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	if p.t.room == nil {
		return ""
	}

	return p.t.room.local.Identity
}

func (p *localPeer) Name() string {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	if p.t.room == nil {
		return ""
	}

	return p.t.room.local.Name
}

func (p *localPeer) Metadata() string {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	if p.t.room == nil {
		return ""
	}

	return p.t.room.local.Metadata
}

func (p *localPeer) IsMicrophoneEnabled() bool {
	return p.t.publishedLive(domain.SourceMicrophone)
}

func (p *localPeer) IsCameraEnabled() bool {
	return p.t.publishedLive(domain.SourceCamera)
}

func (p *localPeer) IsScreenShareEnabled() bool {
	return p.t.publishedLive(domain.SourceScreen)
}

func (p *localPeer) IsSpeaking() bool {
	p.t.mu.RLock()
	defer p.t.mu.RUnlock()

	return p.t.room != nil && p.t.room.local.Speaking
}

func trackInfo(track domain.MediaTrack, muted bool) events.TrackInfo {
	return events.TrackInfo{
		ID:     track.ID(),
		Kind:   string(track.Kind()),
		Source: string(track.Source()),
		Muted:  muted,
	}
}

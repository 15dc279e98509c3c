package domain

import (
	"sync"

	"github.com/samber/lo"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type TrackSource string

const (
	SourceMicrophone  TrackSource = "microphone"
	SourceCamera      TrackSource = "camera"
	SourceScreen      TrackSource = "screen"
	SourceScreenAudio TrackSource = "screen_audio"
)

// MediaTrack - одна аудио или видео дорожка устройства.
//
// Stop идемпотентен и является единственной терминальной операцией.
// OnEnded вызывается только когда трек завершился вне приложения
// (нативная кнопка "остановить показ", отключение устройства), не на Stop.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	Source() TrackSource
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
	OnEnded(fn func())
}

// MediaStream - набор треков, полученный одним запросом к устройствам
type MediaStream struct {
	id string

	mu     sync.RWMutex
	tracks []MediaTrack
}

func NewMediaStream(id string, tracks ...MediaTrack) *MediaStream {
	return &MediaStream{
		id:     id,
		tracks: append([]MediaTrack(nil), tracks...),
	}
}

func (s *MediaStream) ID() string {
	return s.id
}

func (s *MediaStream) Tracks() []MediaTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]MediaTrack(nil), s.tracks...)
}

func (s *MediaStream) AudioTracks() []MediaTrack {
	return s.byKind(TrackKindAudio)
}

func (s *MediaStream) VideoTracks() []MediaTrack {
	return s.byKind(TrackKindVideo)
}

func (s *MediaStream) byKind(kind TrackKind) []MediaTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(s.tracks, func(t MediaTrack, _ int) bool {
		return t.Kind() == kind
	})
}

func (s *MediaStream) AddTrack(t MediaTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.tracks, func(existing MediaTrack) bool { return existing.ID() == t.ID() }) {
		return
	}

	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) RemoveTrack(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.tracks)
	s.tracks = lo.Reject(s.tracks, func(t MediaTrack, _ int) bool { return t.ID() == id })

	return len(s.tracks) != before
}

// Live is true while at least one track has not been stopped.
func (s *MediaStream) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.SomeBy(s.tracks, func(t MediaTrack) bool { return !t.Stopped() })
}

// StopAll останавливает все треки. Повторный вызов ничего не делает.
func (s *MediaStream) StopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// LocalMediaState - состояние локальных устройств.
// Ненулевой стрим всегда содержит хотя бы один живой трек.
type LocalMediaState struct {
	IsMuted         bool         `json:"is_muted"`
	IsCameraOn      bool         `json:"is_camera_on"`
	IsScreenSharing bool         `json:"is_screen_sharing"`
	LocalStream     *MediaStream `json:"-"`
	ScreenStream    *MediaStream `json:"-"`
}

type VideoConstraints struct {
	Width      int
	Height     int
	FacingMode string
}

// MediaConstraints - запрос к микрофону/камере. Nil Video означает без видео.
type MediaConstraints struct {
	Audio bool
	Video *VideoConstraints
}

type DisplayConstraints struct {
	Surface string
	Audio   bool
}

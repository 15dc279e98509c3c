package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
	"github.com/qrave1/LiveRoom/internal/domain"
)

// MediaObserver узнает о треках и состоянии после перехода, вне локов контроллера
type MediaObserver interface {
	TrackAcquired(track domain.MediaTrack)
	TrackReleased(track domain.MediaTrack)
	StateChanged(state domain.LocalMediaState)
}

// MediaUsecase владеет локальными стримами микрофона, камеры и экрана.
// Конкурентная операция над тем же устройством получает domain.ErrDeviceBusy.
type MediaUsecase interface {
	RequestMicrophoneAccess(ctx context.Context) (bool, error)
	ToggleMicrophone() domain.LocalMediaState
	ToggleCamera(ctx context.Context) error
	ToggleScreenShare(ctx context.Context) error

	// ForceMute выключает микрофон по команде модератора. true, если что-то изменилось.
	ForceMute() bool
	// ForceStopScreenShare останавливает показ экрана по команде модератора
	ForceStopScreenShare() bool

	State() domain.LocalMediaState
	SetObserver(observer MediaObserver)
	Close()
}

type MediaOption func(*mediaUsecase)

func WithVideoConstraints(c domain.VideoConstraints) MediaOption {
	return func(m *mediaUsecase) {
		m.video = c
	}
}

func WithDisplayConstraints(c domain.DisplayConstraints) MediaOption {
	return func(m *mediaUsecase) {
		m.display = c
	}
}

type mediaUsecase struct {
	devices DeviceProvider
	video   domain.VideoConstraints
	display domain.DisplayConstraints

	// по одной операции на устройство
	micOp    sync.Mutex
	cameraOp sync.Mutex
	screenOp sync.Mutex

	mu       sync.Mutex
	state    domain.LocalMediaState
	observer MediaObserver
	closed   bool
}

func NewMediaUsecase(devices DeviceProvider, opts ...MediaOption) MediaUsecase {
	m := &mediaUsecase{
		devices: devices,
		video:   domain.VideoConstraints{Width: 1280, Height: 720, FacingMode: "user"},
		display: domain.DisplayConstraints{Surface: "monitor"},
		state:   domain.LocalMediaState{IsMuted: true},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *mediaUsecase) SetObserver(observer MediaObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observer = observer
}

func (m *mediaUsecase) State() domain.LocalMediaState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *mediaUsecase) RequestMicrophoneAccess(ctx context.Context) (bool, error) {
	if !m.micOp.TryLock() {
		return false, domain.ErrDeviceBusy
	}
	defer m.micOp.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, domain.ErrMediaClosed
	}

	// Стрим уже есть: повторного запроса разрешения не будет
	if len(liveTracks(m.state.LocalStream, domain.TrackKindAudio)) > 0 {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	stream, err := m.devices.UserMedia(ctx, domain.MediaConstraints{Audio: true})
	if err != nil {
		slog.Warn(
			"microphone access failed",
			slog.String(constant.Device, string(domain.SourceMicrophone)),
			slog.Any(constant.Error, err),
		)

		return false, fmt.Errorf("request microphone: %w", err)
	}

	// Никакого включенного микрофона при входе
	for _, t := range stream.AudioTracks() {
		t.SetEnabled(false)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stream.StopAll()

		return false, domain.ErrMediaClosed
	}

	acquired, dropped := m.attachLocked(stream.Tracks())
	m.refreshLocalLocked()
	m.state.IsMuted = true
	state, observer := m.state, m.observer
	m.mu.Unlock()

	stopAll(dropped)
	m.notify(observer, acquired, nil, state)

	return true, nil
}

func (m *mediaUsecase) ToggleMicrophone() domain.LocalMediaState {
	m.mu.Lock()

	audio := liveTracks(m.state.LocalStream, domain.TrackKindAudio)
	if m.closed || len(audio) == 0 {
		state := m.state
		m.mu.Unlock()

		return state
	}

	muted := !m.state.IsMuted
	for _, t := range audio {
		t.SetEnabled(!muted)
	}

	m.state.IsMuted = muted
	state, observer := m.state, m.observer
	m.mu.Unlock()

	m.notify(observer, nil, nil, state)

	return state
}

func (m *mediaUsecase) ForceMute() bool {
	m.mu.Lock()

	audio := liveTracks(m.state.LocalStream, domain.TrackKindAudio)
	if m.closed || m.state.IsMuted || len(audio) == 0 {
		m.mu.Unlock()
		return false
	}

	for _, t := range audio {
		t.SetEnabled(false)
	}

	m.state.IsMuted = true
	state, observer := m.state, m.observer
	m.mu.Unlock()

	slog.Info("microphone muted by moderator")

	m.notify(observer, nil, nil, state)

	return true
}

func (m *mediaUsecase) ForceStopScreenShare() bool {
	m.mu.Lock()

	if m.closed || m.state.ScreenStream == nil {
		m.mu.Unlock()
		return false
	}

	released := m.releaseScreenLocked()
	state, observer := m.state, m.observer
	m.mu.Unlock()

	slog.Info("screen share stopped by moderator")

	stopAll(released)
	m.notify(observer, nil, released, state)

	return true
}

func (m *mediaUsecase) ToggleCamera(ctx context.Context) error {
	if !m.cameraOp.TryLock() {
		return domain.ErrDeviceBusy
	}
	defer m.cameraOp.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrMediaClosed
	}

	if m.state.IsCameraOn {
		// Выключение камеры не трогает аудио того же стрима
		released := m.detachLocked(m.state.LocalStream, domain.TrackKindVideo)
		m.refreshLocalLocked()
		state, observer := m.state, m.observer
		m.mu.Unlock()

		m.notify(observer, nil, released, state)

		return nil
	}

	withAudio := len(liveTracks(m.state.LocalStream, domain.TrackKindAudio)) == 0
	m.mu.Unlock()

	video := m.video

	stream, err := m.devices.UserMedia(ctx, domain.MediaConstraints{Audio: withAudio, Video: &video})
	if err != nil {
		slog.Warn(
			"camera access failed",
			slog.String(constant.Device, string(domain.SourceCamera)),
			slog.Any(constant.Error, err),
		)

		return fmt.Errorf("request camera: %w", err)
	}

	for _, t := range stream.AudioTracks() {
		t.SetEnabled(false)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stream.StopAll()

		return domain.ErrMediaClosed
	}

	acquired, dropped := m.attachLocked(stream.Tracks())
	m.refreshLocalLocked()
	state, observer := m.state, m.observer
	m.mu.Unlock()

	stopAll(dropped)
	m.notify(observer, acquired, nil, state)

	return nil
}

func (m *mediaUsecase) ToggleScreenShare(ctx context.Context) error {
	if !m.screenOp.TryLock() {
		return domain.ErrDeviceBusy
	}
	defer m.screenOp.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrMediaClosed
	}

	if m.state.ScreenStream != nil {
		released := m.releaseScreenLocked()
		state, observer := m.state, m.observer
		m.mu.Unlock()

		stopAll(released)
		m.notify(observer, nil, released, state)

		return nil
	}
	m.mu.Unlock()

	stream, err := m.devices.DisplayMedia(ctx, m.display)
	if err != nil {
		slog.Warn(
			"screen capture failed",
			slog.String(constant.Device, string(domain.SourceScreen)),
			slog.Any(constant.Error, err),
		)

		return fmt.Errorf("request screen capture: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stream.StopAll()

		return domain.ErrMediaClosed
	}

	// Колбэк вешаем до проверки Stopped: трек, закончившийся после
	// проверки, все равно снимет показ через handleScreenEnded
	screen := domain.NewMediaStream(stream.ID())
	for _, t := range stream.Tracks() {
		// Остановка показа кнопкой браузера
		t.OnEnded(func() { m.handleScreenEnded(screen) })
	}

	tracks := lo.Reject(stream.Tracks(), func(t domain.MediaTrack, _ int) bool { return t.Stopped() })
	if !lo.ContainsBy(tracks, func(t domain.MediaTrack) bool { return t.Kind() == domain.TrackKindVideo }) {
		m.mu.Unlock()
		stream.StopAll()

		return fmt.Errorf("request screen capture: %w", &domain.DeviceError{Kind: domain.DeviceAborted, Device: domain.SourceScreen})
	}

	for _, t := range tracks {
		screen.AddTrack(t)
	}

	m.state.ScreenStream = screen
	m.state.IsScreenSharing = true
	state, observer := m.state, m.observer
	m.mu.Unlock()

	m.notify(observer, tracks, nil, state)

	return nil
}

func (m *mediaUsecase) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.closed = true

	var released []domain.MediaTrack
	if m.state.LocalStream != nil {
		released = append(released, m.state.LocalStream.Tracks()...)
	}

	if m.state.ScreenStream != nil {
		released = append(released, m.state.ScreenStream.Tracks()...)
	}

	m.state = domain.LocalMediaState{IsMuted: true}
	state, observer := m.state, m.observer
	m.mu.Unlock()

	stopAll(released)
	m.notify(observer, nil, released, state)
}

// handleLocalEnded - трек камеры или микрофона завершился вне приложения
func (m *mediaUsecase) handleLocalEnded(track domain.MediaTrack) {
	m.mu.Lock()

	stream := m.state.LocalStream
	if m.closed || stream == nil || !stream.RemoveTrack(track.ID()) {
		m.mu.Unlock()
		return
	}

	m.refreshLocalLocked()
	state, observer := m.state, m.observer
	m.mu.Unlock()

	slog.Warn(
		"local track ended externally",
		slog.String(constant.TrackID, track.ID()),
		slog.String(constant.Device, string(track.Source())),
	)

	m.notify(observer, nil, []domain.MediaTrack{track}, state)
}

func (m *mediaUsecase) handleScreenEnded(screen *domain.MediaStream) {
	m.mu.Lock()

	if m.closed || m.state.ScreenStream != screen {
		m.mu.Unlock()
		return
	}

	released := m.releaseScreenLocked()
	state, observer := m.state, m.observer
	m.mu.Unlock()

	slog.Info("screen share stopped externally")

	stopAll(released)
	m.notify(observer, nil, released, state)
}

// attachLocked добавляет треки в локальный стрим. Лишний аудио трек
// (микрофон уже есть) возвращается в dropped и должен быть остановлен.
func (m *mediaUsecase) attachLocked(tracks []domain.MediaTrack) (acquired, dropped []domain.MediaTrack) {
	for _, t := range tracks {
		// До проверки Stopped: иначе конец трека между проверкой и
		// регистрацией никто не увидит. Для не принятого трека
		// handleLocalEnded ничего не делает.
		t.OnEnded(func() { m.handleLocalEnded(t) })

		if t.Stopped() {
			continue
		}

		if t.Kind() == domain.TrackKindAudio && len(liveTracks(m.state.LocalStream, domain.TrackKindAudio)) > 0 {
			dropped = append(dropped, t)
			continue
		}

		if m.state.LocalStream == nil {
			m.state.LocalStream = domain.NewMediaStream(uuid.NewString())
		}

		m.state.LocalStream.AddTrack(t)

		acquired = append(acquired, t)
	}

	return acquired, dropped
}

// detachLocked останавливает и убирает из стрима треки одного вида
func (m *mediaUsecase) detachLocked(stream *domain.MediaStream, kind domain.TrackKind) []domain.MediaTrack {
	if stream == nil {
		return nil
	}

	var released []domain.MediaTrack

	for _, t := range stream.Tracks() {
		if t.Kind() != kind {
			continue
		}

		t.Stop()
		stream.RemoveTrack(t.ID())
		released = append(released, t)
	}

	return released
}

func (m *mediaUsecase) releaseScreenLocked() []domain.MediaTrack {
	released := m.state.ScreenStream.Tracks()

	m.state.ScreenStream = nil
	m.state.IsScreenSharing = false

	return released
}

// refreshLocalLocked приводит флаги к содержимому стрима и обнуляет пустой стрим
func (m *mediaUsecase) refreshLocalLocked() {
	stream := m.state.LocalStream

	if stream != nil && !stream.Live() {
		m.state.LocalStream = nil
		stream = nil
	}

	m.state.IsCameraOn = len(liveTracks(stream, domain.TrackKindVideo)) > 0

	if len(liveTracks(stream, domain.TrackKindAudio)) == 0 {
		m.state.IsMuted = true
	}
}

func (m *mediaUsecase) notify(observer MediaObserver, acquired, released []domain.MediaTrack, state domain.LocalMediaState) {
	for _, t := range released {
		metric.TrackReleased(string(t.Kind()))
	}

	for _, t := range acquired {
		metric.TrackAcquired(string(t.Kind()))
	}

	if observer == nil {
		return
	}

	for _, t := range released {
		observer.TrackReleased(t)
	}

	for _, t := range acquired {
		observer.TrackAcquired(t)
	}

	observer.StateChanged(state)
}

func liveTracks(stream *domain.MediaStream, kind domain.TrackKind) []domain.MediaTrack {
	if stream == nil {
		return nil
	}

	var tracks []domain.MediaTrack
	if kind == domain.TrackKindAudio {
		tracks = stream.AudioTracks()
	} else {
		tracks = stream.VideoTracks()
	}

	return lo.Reject(tracks, func(t domain.MediaTrack, _ int) bool { return t.Stopped() })
}

func stopAll(tracks []domain.MediaTrack) {
	for _, t := range tracks {
		t.Stop()
	}
}

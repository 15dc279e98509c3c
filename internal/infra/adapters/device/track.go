package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = time.Second / 15
)

var (
	// Opus кадр тишины
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// тестовый кадр синтетической камеры
	videoPattern = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
)

// Track - синтетический источник, который пишет сэмплы в pion трек.
// Пока трек выключен, сэмплы не пишутся.
type Track struct {
	id     string
	kind   domain.TrackKind
	source domain.TrackSource
	local  *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	enabled bool
	stopped bool
	onEnded []func()
	limit   *time.Timer

	done chan struct{}
}

func newTrack(kind domain.TrackKind, source domain.TrackSource, streamID string) (*Track, error) {
	id := uuid.NewString()

	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == domain.TrackKindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &Track{
		id:      id,
		kind:    kind,
		source:  source,
		local:   local,
		enabled: true,
		done:    make(chan struct{}),
	}

	go t.pump()

	return t, nil
}

func (t *Track) ID() string { return t.id }

func (t *Track) Kind() domain.TrackKind { return t.kind }

func (t *Track) Source() domain.TrackSource { return t.source }

// TrackLocal отдает pion трек для публикации в peer connection
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onEnded = append(t.onEnded, fn)
}

// endAfter завершает трек "снаружи" через d
func (t *Track) endAfter(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.limit = time.AfterFunc(d, t.end)
}

// end - трек закончился не по Stop: вызываем OnEnded
func (t *Track) end() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	t.stopLocked()
	callbacks := append([]func(){}, t.onEnded...)
	t.mu.Unlock()

	slog.Info(
		"track ended",
		slog.String(constant.TrackID, t.id),
		slog.String(constant.Device, string(t.source)),
	)

	for _, fn := range callbacks {
		fn()
	}
}

func (t *Track) stopLocked() {
	if t.stopped {
		return
	}

	t.stopped = true
	close(t.done)

	if t.limit != nil {
		t.limit.Stop()
	}
}

func (t *Track) pump() {
	frame, payload := audioFrame, opusSilence
	if t.kind == domain.TrackKindVideo {
		frame, payload = videoFrame, videoPattern
	}

	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}

			// Без подписчиков WriteSample ничего не делает
			if err := t.local.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
				slog.Debug("write sample", slog.String(constant.TrackID, t.id), slog.Any(constant.Error, err))
			}
		}
	}
}

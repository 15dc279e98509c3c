package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/qrave1/LiveRoom/internal/domain"
)

// Track - трек без реального устройства
type Track struct {
	id     string
	kind   domain.TrackKind
	source domain.TrackSource

	mu      sync.Mutex
	enabled bool
	stopped bool
	stops   int
	onEnded []func()
}

func NewTrack(kind domain.TrackKind, source domain.TrackSource) *Track {
	return &Track{
		id:      uuid.NewString(),
		kind:    kind,
		source:  source,
		enabled: true,
	}
}

func (t *Track) ID() string { return t.id }

func (t *Track) Kind() domain.TrackKind { return t.kind }

func (t *Track) Source() domain.TrackSource { return t.source }

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

	if t.stopped {
		return
	}

	t.stopped = true
	t.stops++
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}

// StopCount - сколько раз трек реально останавливали
func (t *Track) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stops
}

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onEnded = append(t.onEnded, fn)
}

// EndExternally имитирует остановку вне приложения: кнопка браузера, отключенная камера
func (t *Track) EndExternally() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	t.stopped = true
	t.stops++
	callbacks := append([]func(){}, t.onEnded...)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Devices - DeviceProvider в памяти с управляемыми разрешениями
type Devices struct {
	mu         sync.Mutex
	denied     map[domain.TrackSource]domain.DeviceErrorKind
	gate       chan struct{}
	acquired   []*Track
	userPrompt atomic.Int64
	display    atomic.Int64
}

func NewDevices() *Devices {
	return &Devices{
		denied: make(map[domain.TrackSource]domain.DeviceErrorKind),
	}
}

// Deny makes every request for source fail with kind. Zero kind allows it again.
func (d *Devices) Deny(source domain.TrackSource, kind domain.DeviceErrorKind) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if kind == 0 {
		delete(d.denied, source)
		return
	}

	d.denied[source] = kind
}

// HoldPrompts имитирует окно разрешений, висящее до вызова release
func (d *Devices) HoldPrompts() func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	gate := make(chan struct{})
	d.gate = gate

	var once sync.Once

	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()

			close(gate)
		})
	}
}

// UserMediaPrompts - число запросов к микрофону/камере
func (d *Devices) UserMediaPrompts() int {
	return int(d.userPrompt.Load())
}

func (d *Devices) DisplayPrompts() int {
	return int(d.display.Load())
}

// Acquired возвращает все выданные треки
func (d *Devices) Acquired() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Track(nil), d.acquired...)
}

func (d *Devices) UserMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaStream, error) {
	d.userPrompt.Add(1)

	if err := d.wait(ctx); err != nil {
		return nil, &domain.DeviceError{Kind: domain.DeviceAborted, Device: domain.SourceMicrophone, Err: err}
	}

	var tracks []domain.MediaTrack

	if constraints.Audio {
		if err := d.check(domain.SourceMicrophone); err != nil {
			return nil, err
		}
	}

	if constraints.Video != nil {
		if err := d.check(domain.SourceCamera); err != nil {
			return nil, err
		}
	}

	if constraints.Audio {
		tracks = append(tracks, d.track(domain.TrackKindAudio, domain.SourceMicrophone))
	}

	if constraints.Video != nil {
		tracks = append(tracks, d.track(domain.TrackKindVideo, domain.SourceCamera))
	}

	if len(tracks) == 0 {
		return nil, &domain.DeviceError{Kind: domain.DeviceNotFound, Device: domain.SourceMicrophone}
	}

	return domain.NewMediaStream(uuid.NewString(), tracks...), nil
}

func (d *Devices) DisplayMedia(ctx context.Context, constraints domain.DisplayConstraints) (*domain.MediaStream, error) {
	d.display.Add(1)

	if err := d.wait(ctx); err != nil {
		return nil, &domain.DeviceError{Kind: domain.DeviceAborted, Device: domain.SourceScreen, Err: err}
	}

	if err := d.check(domain.SourceScreen); err != nil {
		return nil, err
	}

	tracks := []domain.MediaTrack{d.track(domain.TrackKindVideo, domain.SourceScreen)}
	if constraints.Audio {
		tracks = append(tracks, d.track(domain.TrackKindAudio, domain.SourceScreenAudio))
	}

	return domain.NewMediaStream(uuid.NewString(), tracks...), nil
}

func (d *Devices) wait(ctx context.Context) error {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if gate == nil {
		return ctx.Err()
	}

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Devices) check(source domain.TrackSource) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if kind, ok := d.denied[source]; ok {
		return &domain.DeviceError{Kind: kind, Device: source}
	}

	return nil
}

func (d *Devices) track(kind domain.TrackKind, source domain.TrackSource) *Track {
	t := NewTrack(kind, source)

	d.mu.Lock()
	d.acquired = append(d.acquired, t)
	d.mu.Unlock()

	return t
}

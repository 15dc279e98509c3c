package device

import (
	"context"

	"github.com/google/uuid"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/domain"
)

// Provider - синтетические микрофон, камера и экран.
// Разрешения и ограничение показа экрана задаются конфигом.
type Provider struct {
	cfg config.DeviceConfig
}

func NewProvider(cfg config.DeviceConfig) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) UserMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.DeviceError{Kind: domain.DeviceAborted, Device: domain.SourceMicrophone, Err: err}
	}

	if constraints.Audio && p.cfg.DenyMicrophone {
		return nil, &domain.DeviceError{Kind: domain.DevicePermissionDenied, Device: domain.SourceMicrophone}
	}

	if constraints.Video != nil && p.cfg.DenyCamera {
		return nil, &domain.DeviceError{Kind: domain.DevicePermissionDenied, Device: domain.SourceCamera}
	}

	streamID := uuid.NewString()

	var tracks []domain.MediaTrack

	if constraints.Audio {
		t, err := newTrack(domain.TrackKindAudio, domain.SourceMicrophone, streamID)
		if err != nil {
			return nil, &domain.DeviceError{Kind: domain.DeviceUnavailable, Device: domain.SourceMicrophone, Err: err}
		}

		tracks = append(tracks, t)
	}

	if constraints.Video != nil {
		t, err := newTrack(domain.TrackKindVideo, domain.SourceCamera, streamID)
		if err != nil {
			stopAll(tracks)
			return nil, &domain.DeviceError{Kind: domain.DeviceUnavailable, Device: domain.SourceCamera, Err: err}
		}

		tracks = append(tracks, t)
	}

	if len(tracks) == 0 {
		return nil, &domain.DeviceError{Kind: domain.DeviceNotFound, Device: domain.SourceMicrophone}
	}

	return domain.NewMediaStream(streamID, tracks...), nil
}

func (p *Provider) DisplayMedia(ctx context.Context, constraints domain.DisplayConstraints) (*domain.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.DeviceError{Kind: domain.DeviceAborted, Device: domain.SourceScreen, Err: err}
	}

	if p.cfg.DenyScreen {
		return nil, &domain.DeviceError{Kind: domain.DevicePermissionDenied, Device: domain.SourceScreen}
	}

	streamID := uuid.NewString()

	screen, err := newTrack(domain.TrackKindVideo, domain.SourceScreen, streamID)
	if err != nil {
		return nil, &domain.DeviceError{Kind: domain.DeviceUnavailable, Device: domain.SourceScreen, Err: err}
	}

	tracks := []domain.MediaTrack{screen}

	if constraints.Audio {
		audio, err := newTrack(domain.TrackKindAudio, domain.SourceScreenAudio, streamID)
		if err != nil {
			screen.Stop()
			return nil, &domain.DeviceError{Kind: domain.DeviceUnavailable, Device: domain.SourceScreenAudio, Err: err}
		}

		tracks = append(tracks, audio)
	}

	// Имитация кнопки "остановить показ"
	if p.cfg.ScreenShareLimit > 0 {
		screen.endAfter(p.cfg.ScreenShareLimit)
	}

	return domain.NewMediaStream(streamID, tracks...), nil
}

func stopAll(tracks []domain.MediaTrack) {
	for _, t := range tracks {
		t.Stop()
	}
}

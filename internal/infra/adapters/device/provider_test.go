package device_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/device"
)

func Test_Provider_user_media(t *testing.T) {
	p := device.NewProvider(config.DeviceConfig{})

	stream, err := p.UserMedia(context.Background(), domain.MediaConstraints{Audio: true, Video: &domain.VideoConstraints{}})
	require.NoError(t, err)
	t.Cleanup(stream.StopAll)

	require.Len(t, stream.AudioTracks(), 1)
	require.Len(t, stream.VideoTracks(), 1)
	require.Equal(t, domain.SourceMicrophone, stream.AudioTracks()[0].Source())
	require.Equal(t, domain.SourceCamera, stream.VideoTracks()[0].Source())
	require.True(t, stream.Live())
}

func Test_Provider_device_errors(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		cfg         config.DeviceConfig
		ctx         context.Context
		constraints domain.MediaConstraints
		kind        domain.DeviceErrorKind
		device      domain.TrackSource
	}{
		{
			name:        "microphone denied",
			cfg:         config.DeviceConfig{DenyMicrophone: true},
			ctx:         context.Background(),
			constraints: domain.MediaConstraints{Audio: true},
			kind:        domain.DevicePermissionDenied,
			device:      domain.SourceMicrophone,
		},
		{
			name:        "camera denied",
			cfg:         config.DeviceConfig{DenyCamera: true},
			ctx:         context.Background(),
			constraints: domain.MediaConstraints{Video: &domain.VideoConstraints{}},
			kind:        domain.DevicePermissionDenied,
			device:      domain.SourceCamera,
		},
		{
			name:        "nothing requested",
			ctx:         context.Background(),
			constraints: domain.MediaConstraints{},
			kind:        domain.DeviceNotFound,
			device:      domain.SourceMicrophone,
		},
		{
			name:        "prompt aborted",
			ctx:         canceled,
			constraints: domain.MediaConstraints{Audio: true},
			kind:        domain.DeviceAborted,
			device:      domain.SourceMicrophone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := device.NewProvider(tt.cfg).UserMedia(tt.ctx, tt.constraints)

			var devErr *domain.DeviceError
			require.ErrorAs(t, err, &devErr)
			require.Equal(t, tt.kind, devErr.Kind)
			require.Equal(t, tt.device, devErr.Device)
		})
	}
}

func Test_Provider_display_media(t *testing.T) {
	p := device.NewProvider(config.DeviceConfig{})

	stream, err := p.DisplayMedia(context.Background(), domain.DisplayConstraints{Audio: true})
	require.NoError(t, err)
	t.Cleanup(stream.StopAll)

	require.Len(t, stream.VideoTracks(), 1)
	require.Len(t, stream.AudioTracks(), 1)
	require.Equal(t, domain.SourceScreen, stream.VideoTracks()[0].Source())
	require.Equal(t, domain.SourceScreenAudio, stream.AudioTracks()[0].Source())

	_, err = device.NewProvider(config.DeviceConfig{DenyScreen: true}).DisplayMedia(context.Background(), domain.DisplayConstraints{})

	var devErr *domain.DeviceError
	require.ErrorAs(t, err, &devErr)
	require.Equal(t, domain.DevicePermissionDenied, devErr.Kind)
}

func Test_Provider_screen_share_limit_ends_track(t *testing.T) {
	p := device.NewProvider(config.DeviceConfig{ScreenShareLimit: 30 * time.Millisecond})

	stream, err := p.DisplayMedia(context.Background(), domain.DisplayConstraints{})
	require.NoError(t, err)

	screen := stream.VideoTracks()[0]

	var ended atomic.Int32
	screen.OnEnded(func() { ended.Add(1) })

	require.Eventually(t, func() bool { return ended.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, screen.Stopped())

	// Stop после завершения ничего не вызывает повторно
	screen.Stop()
	require.Equal(t, int32(1), ended.Load())
}

func Test_Track_stop_does_not_fire_ended(t *testing.T) {
	p := device.NewProvider(config.DeviceConfig{ScreenShareLimit: 30 * time.Millisecond})

	stream, err := p.DisplayMedia(context.Background(), domain.DisplayConstraints{})
	require.NoError(t, err)

	screen := stream.VideoTracks()[0]

	var ended atomic.Int32
	screen.OnEnded(func() { ended.Add(1) })

	screen.Stop()
	screen.Stop()

	time.Sleep(60 * time.Millisecond)

	require.True(t, screen.Stopped())
	require.Zero(t, ended.Load())
}

func Test_Track_enable_toggle(t *testing.T) {
	stream, err := device.NewProvider(config.DeviceConfig{}).UserMedia(context.Background(), domain.MediaConstraints{Audio: true})
	require.NoError(t, err)
	t.Cleanup(stream.StopAll)

	mic := stream.AudioTracks()[0]
	require.True(t, mic.Enabled())

	mic.SetEnabled(false)
	require.False(t, mic.Enabled())

	track, ok := mic.(*device.Track)
	require.True(t, ok)
	require.Equal(t, mic.ID(), track.TrackLocal().ID())
}
